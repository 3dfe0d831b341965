package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/garyjia/supplier-ingest/internal/application/port"
)

var chunkMarker = regexp.MustCompile(`chunk (\d+) of (\d+)`)

// scriptedLLM answers each prompt with respond(chunk, attempt, rows). Rows are the
// decoded row objects found after the "## Rows" heading of the prompt.
type scriptedLLM struct {
	respond func(ctx context.Context, chunk, attempt int, rows []map[string]any) (string, error)

	mu       sync.Mutex
	attempts map[int]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func newScriptedLLM(respond func(ctx context.Context, chunk, attempt int, rows []map[string]any) (string, error)) *scriptedLLM {
	return &scriptedLLM{respond: respond, attempts: make(map[int]int)}
}

func (s *scriptedLLM) Complete(ctx context.Context, req port.CompletionRequest) (*port.Completion, error) {
	s.calls.Add(1)
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxInFlight.Load()
		if cur <= prev || s.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	user := req.Messages[len(req.Messages)-1].Content
	m := chunkMarker.FindStringSubmatch(user)
	if m == nil {
		return nil, fmt.Errorf("prompt without chunk marker")
	}
	chunk, _ := strconv.Atoi(m[1])
	chunk-- // prompts number chunks from 1

	s.mu.Lock()
	s.attempts[chunk]++
	attempt := s.attempts[chunk]
	s.mu.Unlock()

	var rows []map[string]any
	if i := strings.Index(user, "## Rows\n"); i >= 0 {
		for _, line := range strings.Split(user[i+len("## Rows\n"):], "\n") {
			var row map[string]any
			if err := json.Unmarshal([]byte(line), &row); err == nil {
				rows = append(rows, row)
			}
		}
	}

	content, err := s.respond(ctx, chunk, attempt, rows)
	if err != nil {
		return nil, err
	}
	return &port.Completion{Content: content, Model: "scripted"}, nil
}

// echoProducts turns every row into a product keyed by its COD column
func echoProducts(rows []map[string]any) string {
	var items []map[string]any
	for _, r := range rows {
		items = append(items, map[string]any{
			"nombre":               r["NOMBRE"],
			"referencia_proveedor": r["COD"],
			"precio_coste":         r["PRECIO"],
			"categoria":            "Varios",
		})
	}
	data, _ := json.Marshal(map[string]any{"productos": items})
	return string(data)
}
