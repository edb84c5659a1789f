// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the text-generation service.
package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	reader *bufio.Reader
	// strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	tokenCount  int
	model       string
	firstToken  bool
	startTime   time.Time
	stats       StreamStats
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader:     bufio.NewReader(r),
		firstToken: true,
		startTime:  time.Now(),
	}
}

// Process reads the stream and routes each fragment to the callbacks.
// Blocks until the stream is complete or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, onText TextCallback, onReasoning ReasoningCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			event, err := s.readEvent()
			if err != nil {
				if err == io.EOF {
					s.stats.EndTime = time.Now()
					return nil
				}
				return err
			}
			if event == nil {
				continue
			}

			if event.Error != "" {
				return &ClientError{Type: ErrTypeInvalidResponse, Message: event.Error}
			}

			if event.Delta.Content != "" && onText != nil {
				onText(event.Delta.Content)
			}
			if (event.Delta.ReasoningSummary != "" || event.Delta.ReasoningDetail != "") && onReasoning != nil {
				onReasoning(event.Delta.ReasoningSummary, event.Delta.ReasoningDetail)
			}

			if event.Done {
				s.stats.EndTime = time.Now()
				s.stats.TotalDuration = time.Duration(event.TotalDuration)
				s.stats.CompletionTokens = event.EvalCount
				return nil
			}
		}
	}
}

// readEvent reads and parses a single line from the stream.
func (s *StreamReader) readEvent() (*streamEvent, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		// Try to process the last line even on EOF
		if len(line) == 0 {
			return nil, err
		}
	}

	// Skip empty lines
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}

	var event streamEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		// Skip malformed lines
		return nil, nil
	}

	if event.Model != "" {
		s.model = event.Model
	}

	if event.Delta.Content != "" {
		s.accumulator.WriteString(event.Delta.Content)
		s.tokenCount++
		if s.firstToken {
			s.firstToken = false
			s.stats.FirstTokenTime = time.Now()
		}
	}

	return &event, nil
}

// Accumulated returns all content received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// TokenCount returns the number of content fragments received.
func (s *StreamReader) TokenCount() int {
	return s.tokenCount
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}

// Stats returns the timing collected while the stream ran.
func (s *StreamReader) Stats() StreamStats {
	stats := s.stats
	stats.StartTime = s.startTime
	return stats
}
