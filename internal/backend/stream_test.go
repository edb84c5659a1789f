// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStreamReaderProcess(t *testing.T) {
	input := strings.Join([]string{
		`{"model":"gpt-5-mini","delta":{"content":"Hello"}}`,
		`{"delta":{"content":" world"}}`,
		``,
		`{"delta":{"reasoning_summary":"thinking","reasoning_detail":"step 1"}}`,
		`{"done":true,"done_reason":"stop","eval_count":3}`,
	}, "\n") + "\n"

	r := NewStreamReader(strings.NewReader(input))

	var texts []string
	var summaries, details []string
	err := r.Process(context.Background(),
		func(delta string) { texts = append(texts, delta) },
		func(summary, detail string) {
			summaries = append(summaries, summary)
			details = append(details, detail)
		})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if got := strings.Join(texts, ""); got != "Hello world" {
		t.Errorf("text deltas = %q, want %q", got, "Hello world")
	}
	if r.Accumulated() != "Hello world" {
		t.Errorf("Accumulated = %q, want %q", r.Accumulated(), "Hello world")
	}
	if len(summaries) != 1 || summaries[0] != "thinking" {
		t.Errorf("summaries = %v, want [thinking]", summaries)
	}
	if len(details) != 1 || details[0] != "step 1" {
		t.Errorf("details = %v, want [step 1]", details)
	}
	if r.Model() != "gpt-5-mini" {
		t.Errorf("Model = %q, want %q", r.Model(), "gpt-5-mini")
	}
	if r.TokenCount() != 2 {
		t.Errorf("TokenCount = %d, want 2", r.TokenCount())
	}
}

func TestStreamReaderSkipsMalformedLines(t *testing.T) {
	input := `{"delta":{"content":"ok"}}
not json at all
{"done":true}
`
	r := NewStreamReader(strings.NewReader(input))

	err := r.Process(context.Background(), func(string) {}, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Accumulated() != "ok" {
		t.Errorf("Accumulated = %q, want %q", r.Accumulated(), "ok")
	}
}

func TestStreamReaderErrorEvent(t *testing.T) {
	input := `{"delta":{"content":"partial"}}
{"error":"model overloaded"}
`
	r := NewStreamReader(strings.NewReader(input))

	err := r.Process(context.Background(), func(string) {}, nil)
	if err == nil {
		t.Fatal("expected an error from the error event")
	}
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("err = %T, want *ClientError", err)
	}
	if clientErr.Message != "model overloaded" {
		t.Errorf("Message = %q, want %q", clientErr.Message, "model overloaded")
	}
}

func TestStreamReaderContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewStreamReader(strings.NewReader(`{"delta":{"content":"x"}}` + "\n"))
	err := r.Process(ctx, func(string) {}, nil)
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStreamReaderEOFWithoutDone(t *testing.T) {
	// A connection that closes without a done event is a clean end; the
	// engine falls back to the accumulated text.
	r := NewStreamReader(strings.NewReader(`{"delta":{"content":"truncated"}}` + "\n"))
	err := r.Process(context.Background(), func(string) {}, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Accumulated() != "truncated" {
		t.Errorf("Accumulated = %q, want %q", r.Accumulated(), "truncated")
	}
}
