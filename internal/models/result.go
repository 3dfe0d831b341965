package models

// FailedItem is a row or line that could not be imported
type FailedItem struct {
	RowIndex int       `json:"row_index"`
	Kind     ErrorKind `json:"error_kind"`
	Message  string    `json:"message"`
}

// ChunkOutcome is the ledger entry of one extraction chunk
type ChunkOutcome struct {
	Index    int       `json:"index"`
	Rows     int       `json:"rows"`
	Attempts int       `json:"attempts"`
	Products int       `json:"products"`
	OK       bool      `json:"ok"`
	Kind     ErrorKind `json:"error_kind,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// ImportResult is the envelope returned by every pipeline entry point
type ImportResult struct {
	RunID         string         `json:"run_id"`
	Source        string         `json:"source,omitempty"`
	Created       []int64        `json:"created"`
	Updated       []int64        `json:"updated"`
	Failed        []FailedItem   `json:"failed"`
	Warnings      []Warning      `json:"warnings"`
	Chunks        []ChunkOutcome `json:"chunks,omitempty"`
	BusinessRules *BusinessRules `json:"business_rules,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
	Cancelled     bool           `json:"cancelled"`
}

// NewImportResult returns an envelope with non-nil slices so it serializes as empty arrays
func NewImportResult(runID string) *ImportResult {
	return &ImportResult{
		RunID:    runID,
		Created:  []int64{},
		Updated:  []int64{},
		Failed:   []FailedItem{},
		Warnings: []Warning{},
	}
}

func (r *ImportResult) AddFailure(row int, err error) {
	r.Failed = append(r.Failed, FailedItem{RowIndex: row, Kind: KindOf(err), Message: err.Error()})
}

// IDs returns created and updated ids together
func (r *ImportResult) IDs() []int64 {
	ids := make([]int64, 0, len(r.Created)+len(r.Updated))
	ids = append(ids, r.Created...)
	return append(ids, r.Updated...)
}
