// Package extraction drives the language model over chunks of raw workbook rows
// and merges the products it returns.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// Config tunes chunking, concurrency and retries
type Config struct {
	ChunkSize             int
	MaxParallel           int
	PerCallTimeout        time.Duration
	MaxRetries            int
	BackoffBase           time.Duration
	BackoffFactor         float64
	BackoffJitter         float64 // fraction, 0.2 = ±20%
	GracefulCancelTimeout time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		ChunkSize:             25,
		MaxParallel:           4,
		PerCallTimeout:        180 * time.Second,
		MaxRetries:            2,
		BackoffBase:           time.Second,
		BackoffFactor:         2,
		BackoffJitter:         0.2,
		GracefulCancelTimeout: 5 * time.Second,
	}
}

func (c Config) validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	case c.MaxParallel <= 0:
		return fmt.Errorf("max parallel calls must be positive, got %d", c.MaxParallel)
	case c.MaxRetries < 0:
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	case c.PerCallTimeout <= 0:
		return fmt.Errorf("per-call timeout must be positive")
	}
	return nil
}

// Request is one workbook's worth of rows
type Request struct {
	Rows     []models.RawRow
	Supplier string
	Rules    *models.BusinessRules
	// OnChunk, when set, is called from the worker goroutine as each scheduled chunk finishes
	OnChunk func(models.ChunkOutcome)
}

// Result holds the merged candidates in chunk order plus the per-chunk ledger
type Result struct {
	Candidates []Candidate
	Ledger     []models.ChunkOutcome
	Cancelled  bool
}

// Failed counts chunks that produced nothing
func (r *Result) Failed() int {
	n := 0
	for _, c := range r.Ledger {
		if !c.OK {
			n++
		}
	}
	return n
}

// Orchestrator extracts products from raw rows with bounded concurrency
type Orchestrator struct {
	client  port.LLMClient
	prompts *PromptBuilder
	cfg     Config
	logger  *zap.Logger
}

// NewOrchestrator creates an orchestrator. A nil prompt builder uses the default prompt.
func NewOrchestrator(client port.LLMClient, prompts *PromptBuilder, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if prompts == nil {
		var err error
		if prompts, err = NewPromptBuilder(DefaultPromptTemplate()); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{client: client, prompts: prompts, cfg: cfg, logger: logger}, nil
}

type chunkResult struct {
	candidates []Candidate
	outcome    models.ChunkOutcome
}

// Extract partitions the rows into chunks and sends up to MaxParallel of them to the
// model at once, in FIFO order. A chunk that still fails after its retries yields no
// candidates and a failed ledger entry; it never aborts the batch.
//
// When ctx is cancelled no further chunks start. Calls already in flight get
// GracefulCancelTimeout to finish before they are cancelled too.
func (o *Orchestrator) Extract(ctx context.Context, req Request, rec models.Recorder) (*Result, error) {
	chunks := partition(req.Rows, o.cfg.ChunkSize)
	res := &Result{}
	if len(chunks) == 0 {
		return res, nil
	}

	callCtx, cancelCalls := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCalls()
	stopGrace := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(o.cfg.GracefulCancelTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelCalls()
		case <-callCtx.Done():
		}
	})
	defer stopGrace()

	results := make([]*chunkResult, len(chunks))
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxParallel)

	o.logger.Info("Starting extraction",
		zap.Int("rows", len(req.Rows)),
		zap.Int("chunks", len(chunks)),
		zap.Int("max_parallel", o.cfg.MaxParallel))

	for i, rows := range chunks {
		if ctx.Err() != nil {
			break
		}
		batch := models.ExtractionBatch{Rows: rows, Index: i}
		// Go waits for a free slot; in-flight chunks end at most GracefulCancelTimeout after ctx
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = o.runChunk(ctx, callCtx, batch, len(chunks), req, rec)
			if req.OnChunk != nil {
				req.OnChunk(results[i].outcome)
			}
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]int)
	for i, r := range results {
		if r == nil {
			res.Cancelled = true
			res.Ledger = append(res.Ledger, models.ChunkOutcome{
				Index: i, Rows: len(chunks[i]), Kind: models.KindCancelled, Error: "not scheduled: run cancelled",
			})
			continue
		}
		res.Ledger = append(res.Ledger, r.outcome)
		for _, c := range r.candidates {
			res.Candidates = mergeCandidate(res.Candidates, seen, c, rec)
		}
	}
	if ctx.Err() != nil {
		res.Cancelled = true
	}

	o.logger.Info("Extraction finished",
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("failed_chunks", res.Failed()),
		zap.Bool("cancelled", res.Cancelled))
	return res, nil
}

// mergeCandidate appends c, replacing an earlier candidate with the same code (last write wins)
func mergeCandidate(list []Candidate, seen map[string]int, c Candidate, rec models.Recorder) []Candidate {
	key := utils.FoldKey(c.Code)
	if key == "" {
		return append(list, c)
	}
	if pos, dup := seen[key]; dup {
		prev := list[pos]
		models.Warn(rec, models.KindDuplicate, fmt.Sprintf("chunk %d", c.Chunk),
			"product %q repeated; the occurrence from chunk %d (%q) is replaced", c.Code, prev.Chunk, prev.Name)
		list[pos] = c
		return list
	}
	seen[key] = len(list)
	return append(list, c)
}

// runChunk calls the model for one chunk, retrying with exponential back-off.
// Retries stop early once the run is cancelled.
func (o *Orchestrator) runChunk(runCtx, callCtx context.Context, batch models.ExtractionBatch, total int, req Request, rec models.Recorder) *chunkResult {
	out := &chunkResult{outcome: models.ChunkOutcome{Index: batch.Index, Rows: len(batch.Rows)}}
	logger := o.logger.With(zap.Int("chunk", batch.Index), zap.Int("rows", len(batch.Rows)))

	messages, err := o.prompts.Build(batch, total, req.Supplier, req.Rules)
	if err != nil {
		out.outcome.Kind = models.KindExtraction
		out.outcome.Error = err.Error()
		return out
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxRetries+1; attempt++ {
		batch.Attempt = attempt
		out.outcome.Attempts = attempt

		candidates, err := o.call(callCtx, messages, batch, rec)
		if err == nil {
			out.candidates = candidates
			out.outcome.OK = true
			out.outcome.Products = len(candidates)
			logger.Debug("Chunk extracted", zap.Int("attempt", attempt), zap.Int("products", len(candidates)))
			return out
		}
		lastErr = err
		logger.Warn("Chunk extraction failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt > o.cfg.MaxRetries || runCtx.Err() != nil || callCtx.Err() != nil {
			break
		}
		if err := sleepCtx(runCtx, o.backoff(attempt)); err != nil {
			break
		}
	}

	out.outcome.Kind = models.KindExtraction
	if runCtx.Err() != nil && out.outcome.Attempts <= o.cfg.MaxRetries {
		out.outcome.Kind = models.KindCancelled
	}
	out.outcome.Error = lastErr.Error()
	models.Warn(rec, out.outcome.Kind, fmt.Sprintf("chunk %d", batch.Index),
		"no products extracted after %d attempt(s): %v", out.outcome.Attempts, lastErr)
	return out
}

func (o *Orchestrator) call(ctx context.Context, messages []port.Message, batch models.ExtractionBatch, rec models.Recorder) ([]Candidate, error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.PerCallTimeout)
	defer cancel()

	resp, err := o.client.Complete(actx, port.CompletionRequest{
		Messages: messages,
		JSONMode: true,
		Timeout:  o.cfg.PerCallTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: llm call: %w", models.ErrExtraction, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: llm returned no completion", models.ErrExtraction)
	}
	// Item-level warnings are only kept for the attempt that succeeds
	attemptWarnings := &models.Warnings{}
	candidates, err := parseResponse(resp.Content, batch.Index, attemptWarnings)
	if err != nil {
		return nil, err
	}
	for _, w := range attemptWarnings.List() {
		if rec != nil {
			rec.Record(w)
		}
	}
	return candidates, nil
}

// backoff returns base * factor^(attempt-1), jittered by ±BackoffJitter
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := float64(o.cfg.BackoffBase) * math.Pow(o.cfg.BackoffFactor, float64(attempt-1))
	if j := o.cfg.BackoffJitter; j > 0 {
		d *= 1 + j*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func partition(rows []models.RawRow, size int) [][]models.RawRow {
	var chunks [][]models.RawRow
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
