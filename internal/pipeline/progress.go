package pipeline

import (
	"sync"
	"time"
)

// Phase names a stage of a run, as reported in progress events
type Phase string

const (
	PhaseNormalize Phase = "normalize"
	PhaseExtract   Phase = "extract"
	PhaseUpsert    Phase = "upsert"
	PhaseOCR       Phase = "ocr"
	PhaseInvoice   Phase = "invoice"
)

// ProgressEvent is emitted while a run advances through a phase
type ProgressEvent struct {
	RunID  string `json:"run_id"`
	Phase  Phase  `json:"phase"`
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	OK     int    `json:"ok"`
	Failed int    `json:"failed"`
}

// ProgressFunc receives progress events. Calls never overlap, but during extraction they
// come from worker goroutines; the function must not block.
type ProgressFunc func(ProgressEvent)

// Defaults for progress throttling
const (
	DefaultProgressInterval = 100 * time.Millisecond
	DefaultProgressEvery    = 50
)

// progress throttles events: one every interval or every n items, whichever comes first.
// The first and the last item of a phase are always reported.
type progress struct {
	fn       ProgressFunc
	interval time.Duration
	every    int
	now      func() time.Time

	mu        sync.Mutex
	event     ProgressEvent
	lastAt    time.Time
	lastIndex int
}

func newProgress(fn ProgressFunc, runID string, interval time.Duration, every int) *progress {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	if every <= 0 {
		every = DefaultProgressEvery
	}
	return &progress{
		fn:       fn,
		interval: interval,
		every:    every,
		now:      time.Now,
		event:    ProgressEvent{RunID: runID},
	}
}

// start opens a phase of total items and reports it
func (p *progress) start(phase Phase, total int) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.event = ProgressEvent{RunID: p.event.RunID, Phase: phase, Total: total}
	p.lastIndex = 0
	p.lastAt = p.now()
	p.fn(p.event)
}

// step records one finished item
func (p *progress) step(ok bool) {
	p.advance(1, ok)
}

// advance records n finished items, e.g. the rows of an extracted chunk
func (p *progress) advance(n int, ok bool) {
	if p == nil || p.fn == nil || n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.event.Index += n
	if ok {
		p.event.OK += n
	} else {
		p.event.Failed += n
	}
	now := p.now()
	if p.event.Index >= p.event.Total ||
		p.event.Index-p.lastIndex >= p.every ||
		now.Sub(p.lastAt) >= p.interval {
		p.lastIndex, p.lastAt = p.event.Index, now
		p.fn(p.event)
	}
}

// finish reports the phase as complete with the final counts
func (p *progress) finish(ok, failed int) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.event.Index = p.event.Total
	p.event.OK, p.event.Failed = ok, failed
	p.lastIndex, p.lastAt = p.event.Index, p.now()
	p.fn(p.event)
}
