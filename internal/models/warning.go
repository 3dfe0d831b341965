package models

import (
	"fmt"
	"sync"
)

// Warning is a non-fatal observation collected during a run
type Warning struct {
	Kind    ErrorKind `json:"kind"`
	Scope   string    `json:"scope,omitempty"`
	Message string    `json:"message"`
}

// Recorder receives warnings. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(w Warning)
}

// Warn records a formatted warning on r. A nil recorder drops the warning.
func Warn(r Recorder, kind ErrorKind, scope, format string, args ...any) {
	if r == nil {
		return
	}
	r.Record(Warning{Kind: kind, Scope: scope, Message: fmt.Sprintf(format, args...)})
}

// Warnings is a concurrency-safe Recorder that keeps warnings in arrival order
type Warnings struct {
	mu    sync.Mutex
	items []Warning
}

func (w *Warnings) Record(item Warning) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items, item)
}

// List returns a copy of the recorded warnings
func (w *Warnings) List() []Warning {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Warning, len(w.items))
	copy(out, w.items)
	return out
}

func (w *Warnings) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

type scoped struct {
	next  Recorder
	scope string
}

func (s scoped) Record(w Warning) {
	if w.Scope == "" {
		w.Scope = s.scope
	} else {
		w.Scope = s.scope + ": " + w.Scope
	}
	s.next.Record(w)
}

// Scoped prefixes the scope of every warning passed through it
func Scoped(r Recorder, scope string) Recorder {
	if r == nil {
		return nil
	}
	return scoped{next: r, scope: scope}
}
