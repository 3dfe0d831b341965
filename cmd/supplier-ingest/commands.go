package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/config"
	"github.com/garyjia/supplier-ingest/internal/container"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/internal/pipeline"
	"github.com/garyjia/supplier-ingest/internal/report"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

var version = "0.1.0"

// cli holds the persistent flags shared by every command
type cli struct {
	configPath string
	logLevel   string
	dryRun     bool
	noArchive  bool
	progress   bool
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	app := &cli{out: out}

	root := &cobra.Command{
		Use:   "supplier-ingest",
		Short: "Normalize supplier price lists and invoices into the product catalog",
		Long: `supplier-ingest reads supplier price-list workbooks and invoices, extracts
products with a language model or per-supplier adapters, and upserts them into
the local catalog. Every run prints its result as JSON and is archived together
with an xlsx report under output.dir.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "config file (yaml)")
	flags.StringVar(&app.logLevel, "log-level", "", "override logger.level (debug, info, warn, error)")
	flags.BoolVar(&app.dryRun, "dry-run", false, "keep catalog writes in memory")
	flags.BoolVar(&app.noArchive, "no-archive", false, "do not archive the run result")
	flags.BoolVar(&app.progress, "progress", false, "log progress events")

	root.AddCommand(
		app.priceListCmd(),
		app.invoiceCmd(),
		app.ocrCmd(),
		app.migrateCmd(),
		app.runsCmd(),
	)
	return root
}

func (a *cli) priceListCmd() *cobra.Command {
	var supplier string
	cmd := &cobra.Command{
		Use:   "pricelist <workbook.xlsx>",
		Short: "Import a supplier price-list workbook",
		Example: `  supplier-ingest pricelist tarifa.xlsx --supplier ALMCE
  supplier-ingest pricelist tarifa.xlsx --dry-run --progress`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				a.watchProgress(c)
				res, err := c.Coordinator().ImportPriceList(ctx, args[0], supplier)
				return a.report(ctx, c, res, err)
			})
		},
	}
	cmd.Flags().StringVarP(&supplier, "supplier", "s", "", "supplier name hint")
	return cmd
}

func (a *cli) invoiceCmd() *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "invoice <file>",
		Short: "Import a supplier invoice (pdf, image or transcribed text)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, ct, err := readDocument(args[0], contentType)
			if err != nil {
				return err
			}
			return a.withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				a.watchProgress(c)
				res, err := c.Coordinator().ImportInvoiceDocument(ctx, doc, ct)
				if res != nil {
					res.Source = args[0]
				}
				return a.report(ctx, c, res, err)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "override the content type detected from the file")
	return cmd
}

func (a *cli) ocrCmd() *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "ocr <file>",
		Short: "Print the text recognized in a document without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, ct, err := readDocument(args[0], contentType)
			if err != nil {
				return err
			}
			a.dryRun = true
			return a.withContainer(cmd, func(ctx context.Context, c *container.Container) error {
				res, err := c.OCR().OCR(ctx, doc, ct)
				if err != nil {
					return err
				}
				return a.printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "override the content type detected from the file")
	return cmd
}

func (a *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the catalog database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			bundle, err := container.ProvideDatabase(cmd.Context(), cfg.DatabaseConfig(), logger)
			if err != nil {
				return err
			}
			defer bundle.DB.Close()

			logger.Info("Catalog schema is up to date",
				zap.String("path", cfg.Database.Path),
				zap.Int("applied", bundle.Applied))
			return a.printJSON(map[string]any{"database": cfg.Database.Path, "applied": bundle.Applied})
		},
	}
}

func (a *cli) runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs [folder]",
		Short: "List archived runs, or print the result of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.dryRun = true
			return a.withContainer(cmd, func(_ context.Context, c *container.Container) error {
				if len(args) == 1 {
					res, err := c.Archive().Load(args[0])
					if err != nil {
						return err
					}
					return a.printJSON(res)
				}
				runs, err := c.Archive().Runs()
				if err != nil {
					return err
				}
				if runs == nil {
					runs = []string{}
				}
				return a.printJSON(runs)
			})
		},
	}
}

// load reads configuration and builds the logger
func (a *cli) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}
	logger, err := utils.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// withContainer starts a container for one command. SIGINT and SIGTERM cancel the run.
func (a *cli) withContainer(cmd *cobra.Command, fn func(context.Context, *container.Container) error) error {
	cfg, logger, err := a.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, container.Options{DryRun: a.dryRun}, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func (a *cli) watchProgress(c *container.Container) {
	if !a.progress {
		return
	}
	logger := c.Logger()
	c.Coordinator().OnProgress(func(e pipeline.ProgressEvent) {
		logger.Info("Progress",
			zap.String("run_id", e.RunID),
			zap.String("phase", string(e.Phase)),
			zap.Int("index", e.Index),
			zap.Int("total", e.Total),
			zap.Int("ok", e.OK),
			zap.Int("failed", e.Failed))
	})
}

// report prints the result, archives it with its xlsx report and returns runErr.
// A result is printed even when the run failed as a whole.
func (a *cli) report(ctx context.Context, c *container.Container, res *models.ImportResult, runErr error) error {
	if res == nil {
		return runErr
	}
	if err := a.printJSON(res); err != nil {
		return err
	}

	if !a.noArchive {
		attachments := map[string][]byte{}
		if data, err := c.Reports().Render(res); err != nil {
			c.Logger().Warn("Failed to render report", zap.Error(err))
		} else {
			attachments[report.FileName] = data
		}
		// the run context may already be cancelled; archiving still has to happen
		if _, err := c.Archive().Save(context.WithoutCancel(ctx), res, attachments); err != nil {
			c.Logger().Error("Failed to archive run", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	return runErr
}

func (a *cli) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readDocument loads a document and resolves its content type: the override,
// then the file extension, then content sniffing.
func readDocument(path, override string) ([]byte, string, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if override != "" {
		return doc, override, nil
	}
	return doc, contentTypeFor(path, doc), nil
}

func contentTypeFor(path string, doc []byte) string {
	switch ext := filepath.Ext(path); ext {
	case ".txt", ".md":
		return "text/plain"
	case "":
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return http.DetectContentType(doc)
}
