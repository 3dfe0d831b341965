package categorize

// Category ids are the ones used by the downstream catalog for the same names.
const (
	fallbackID   = 135
	fallbackName = "OTROS"
)

// FallbackCategory is the bucket assigned when nothing else matches
const FallbackCategory = fallbackName

// DefaultRules is the appliance keyword table. Order matters: the first keyword found in
// a description decides its category, so specific terms precede generic ones.
func DefaultRules() []Rule {
	return []Rule{
		// kitchen
		{Keyword: "microondas", CategoryPath: "Microondas", CategoryID: 39},
		{Keyword: "airfryer", CategoryPath: "FREIDORAS", CategoryID: 120},
		{Keyword: "air fryer", CategoryPath: "FREIDORAS", CategoryID: 120},
		{Keyword: "horno", CategoryPath: "Hornos", CategoryID: 33},
		{Keyword: "frigorifico", CategoryPath: "Frigoríficos", CategoryID: 37},
		{Keyword: "frigo", CategoryPath: "Frigoríficos", CategoryID: 37},
		{Keyword: "2pta", CategoryPath: "Frigoríficos", CategoryID: 37},
		{Keyword: "nevera", CategoryPath: "Frigoríficos", CategoryID: 37},
		{Keyword: "combi", CategoryPath: "Frigoríficos", CategoryID: 37},
		{Keyword: "cafetera", CategoryPath: "Cafeteras", CategoryID: 126},
		{Keyword: "café", CategoryPath: "Cafeteras", CategoryID: 126},
		{Keyword: "expresso", CategoryPath: "Cafeteras", CategoryID: 126},
		{Keyword: "batidora", CategoryPath: "BATIDORAS MANO", CategoryID: 117},
		{Keyword: "picadora", CategoryPath: "BATIDORAS MANO", CategoryID: 117},
		{Keyword: "exprimidor", CategoryPath: "EXPRIMIDOR", CategoryID: 119},
		{Keyword: "freidora", CategoryPath: "FREIDORAS", CategoryID: 120},
		{Keyword: "vitro", CategoryPath: "Placas de inducción", CategoryID: 103},
		{Keyword: "induccion", CategoryPath: "Placas de inducción", CategoryID: 103},
		{Keyword: "placa", CategoryPath: "Placas de inducción", CategoryID: 103},
		{Keyword: "encimera", CategoryPath: "Placas de inducción", CategoryID: 103},
		{Keyword: "cocina", CategoryPath: "Placas de inducción", CategoryID: 103},
		{Keyword: "tostador", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "envasadora", CategoryPath: fallbackName, CategoryID: fallbackID},

		// washing
		{Keyword: "lavadora", CategoryPath: "Lavadoras", CategoryID: 40},
		{Keyword: "secadora", CategoryPath: "Secadora", CategoryID: 43},
		{Keyword: "lavavajillas", CategoryPath: "Lavavajillas", CategoryID: 46},

		// climate
		{Keyword: "ventilador", CategoryPath: "Ventiladores", CategoryID: 81},
		{Keyword: "aire acondicionado", CategoryPath: "A/A", CategoryID: 115},
		{Keyword: "a/a", CategoryPath: "A/A", CategoryID: 115},
		{Keyword: "inverter", CategoryPath: "A/A", CategoryID: 115},
		{Keyword: "split", CategoryPath: "A/A", CategoryID: 115},
		{Keyword: "calefactor", CategoryPath: "CALEFACCIÓN", CategoryID: 20},
		{Keyword: "calefaccion", CategoryPath: "CALEFACCIÓN", CategoryID: 20},
		{Keyword: "radiador", CategoryPath: "CALEFACCIÓN", CategoryID: 20},

		// freezers
		{Keyword: "congelador", CategoryPath: "CONGELADOR", CategoryID: 38},
		{Keyword: "arcon", CategoryPath: "CONGELADOR", CategoryID: 38},
		{Keyword: "arca", CategoryPath: "CONGELADOR", CategoryID: 38},

		// personal care
		{Keyword: "secador", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "cortapelo", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "pelo", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "cepillo", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "dientes", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "afeitadora", CategoryPath: fallbackName, CategoryID: fallbackID},

		// electronics
		{Keyword: "altavoz", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "televisor", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "tv", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "soporte", CategoryPath: fallbackName, CategoryID: fallbackID},

		// tools
		{Keyword: "taladro", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "martillo", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "alicate", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "bateria", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "sierra", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "amoladora", CategoryPath: fallbackName, CategoryID: fallbackID},

		// misc
		{Keyword: "plancha", CategoryPath: "PLANCHAS-ROPA", CategoryID: 132},
		{Keyword: "jardin", CategoryPath: "JARDIN", CategoryID: 138},
		{Keyword: "lampara", CategoryPath: "LUZ", CategoryID: 134},
		{Keyword: "guirnalda", CategoryPath: "LUZ", CategoryID: 134},
		{Keyword: "luz", CategoryPath: "LUZ", CategoryID: 134},
		{Keyword: "led", CategoryPath: "LUZ", CategoryID: 134},
		{Keyword: "cable", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Keyword: "alargo", CategoryPath: fallbackName, CategoryID: fallbackID},
	}
}

// DefaultSupplierCategories maps suppliers with a single-category catalog to that category
func DefaultSupplierCategories() []SupplierDefault {
	return []SupplierDefault{
		{Supplier: "CECOTEC", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Supplier: "JATA", CategoryPath: fallbackName, CategoryID: fallbackID},
		{Supplier: "ORBEGOZO", CategoryPath: fallbackName, CategoryID: fallbackID},
	}
}
