package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressThrottling(t *testing.T) {
	var events []ProgressEvent
	p := newProgress(func(e ProgressEvent) { events = append(events, e) }, "run", 100*time.Millisecond, 50)

	now := time.Unix(0, 0)
	p.now = func() time.Time { return now }

	p.start(PhaseUpsert, 120)
	for i := 0; i < 120; i++ {
		p.step(i%10 != 0)
	}

	var indexes []int
	for _, e := range events {
		indexes = append(indexes, e.Index)
	}
	assert.Equal(t, []int{0, 50, 100, 120}, indexes)

	last := events[len(events)-1]
	assert.Equal(t, 108, last.OK)
	assert.Equal(t, 12, last.Failed)
}

func TestProgressInterval(t *testing.T) {
	var events []ProgressEvent
	p := newProgress(func(e ProgressEvent) { events = append(events, e) }, "run", 100*time.Millisecond, 50)

	now := time.Unix(0, 0)
	p.now = func() time.Time { return now }

	p.start(PhaseInvoice, 10)
	p.step(true)
	now = now.Add(150 * time.Millisecond)
	p.step(true)
	p.step(true)

	var indexes []int
	for _, e := range events {
		indexes = append(indexes, e.Index)
	}
	assert.Equal(t, []int{0, 2}, indexes)
}

func TestProgressNilCallback(t *testing.T) {
	p := newProgress(nil, "run", 0, 0)
	assert.NotPanics(t, func() {
		p.start(PhaseExtract, 1)
		p.step(true)
		p.finish(1, 0)
	})
}
