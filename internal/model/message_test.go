// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("What is this paper about?", "selected passage")

	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want %q", msg.Role, RoleUser)
	}
	if msg.Text != "What is this paper about?" {
		t.Errorf("Text = %q, want %q", msg.Text, "What is this paper about?")
	}
	if msg.SelectedTextContext != "selected passage" {
		t.Errorf("SelectedTextContext = %q, want %q", msg.SelectedTextContext, "selected passage")
	}
	if msg.Streaming {
		t.Error("user message should not be streaming")
	}
	if msg.ID == "" {
		t.Error("message ID should not be empty")
	}
	if msg.Timestamp == 0 {
		t.Error("Timestamp should be set")
	}
}

func TestNewAssistantMessage(t *testing.T) {
	msg := NewAssistantMessage("gpt-5-mini")

	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want %q", msg.Role, RoleAssistant)
	}
	if !msg.IsStreaming() {
		t.Error("new assistant message should be streaming")
	}
	if msg.ModelName != "gpt-5-mini" {
		t.Errorf("ModelName = %q, want %q", msg.ModelName, "gpt-5-mini")
	}
	if msg.DisplayText() != "" {
		t.Errorf("DisplayText = %q, want empty", msg.DisplayText())
	}
}

func TestAppendTextVerbatim(t *testing.T) {
	msg := NewAssistantMessage("test")

	// Deltas are concatenated raw, never re-split or trimmed.
	msg.AppendText("Hel")
	msg.AppendText("lo ")
	msg.AppendText(" world")

	if got := msg.AccumulatedText(); got != "Hello  world" {
		t.Errorf("AccumulatedText = %q, want %q", got, "Hello  world")
	}
	if got := msg.DisplayText(); got != "Hello  world" {
		t.Errorf("DisplayText while streaming = %q, want %q", got, "Hello  world")
	}
}

func TestAppendReasoningOpensOnFirstEvent(t *testing.T) {
	msg := NewAssistantMessage("test")

	if msg.ReasoningOpen {
		t.Error("ReasoningOpen should start false")
	}

	msg.AppendReasoning("thinking about", "")
	if !msg.ReasoningOpen {
		t.Error("first reasoning event should open the reasoning view")
	}

	msg.AppendReasoning(" the question", "step detail")
	summary, details := msg.DisplayReasoning()
	if summary != "thinking about the question" {
		t.Errorf("summary = %q, want %q", summary, "thinking about the question")
	}
	if details != "step detail" {
		t.Errorf("details = %q, want %q", details, "step detail")
	}
}

func TestFinalizeTextExactlyOnce(t *testing.T) {
	msg := NewAssistantMessage("test")
	msg.AppendText("partial")

	msg.FinalizeText("final answer")
	if msg.IsStreaming() {
		t.Error("message should not be streaming after finalize")
	}
	if msg.Text != "final answer" {
		t.Errorf("Text = %q, want %q", msg.Text, "final answer")
	}

	// Second finalize is a no-op: the transition happens exactly once.
	msg.FinalizeText("overwritten")
	if msg.Text != "final answer" {
		t.Errorf("Text after second finalize = %q, want %q", msg.Text, "final answer")
	}
	msg.FinalizeCancelled("[Request cancelled]")
	if msg.Text != "final answer" {
		t.Errorf("Text after late cancel = %q, want %q", msg.Text, "final answer")
	}
}

func TestFinalizeCancelledClearsReasoning(t *testing.T) {
	msg := NewAssistantMessage("test")
	msg.AppendText("partial output")
	msg.AppendReasoning("some reasoning", "details")

	msg.FinalizeCancelled("[Request cancelled]")

	if msg.IsStreaming() {
		t.Error("cancelled message should not be streaming")
	}
	if msg.Text != "[Request cancelled]" {
		t.Errorf("Text = %q, want cancellation marker", msg.Text)
	}
	if msg.ReasoningSummary != "" || msg.ReasoningDetails != "" {
		t.Error("cancellation should clear reasoning fields")
	}
	if msg.ReasoningOpen {
		t.Error("cancellation should close the reasoning view")
	}
}

func TestFinalizeError(t *testing.T) {
	msg := NewAssistantMessage("test")
	msg.AppendText("partial")

	msg.FinalizeError("Error: backend is not reachable")

	if msg.IsStreaming() {
		t.Error("errored message should not be streaming")
	}
	if !strings.HasPrefix(msg.Text, "Error: ") {
		t.Errorf("Text = %q, want error marker prefix", msg.Text)
	}
}

func TestPreviewRuneSafe(t *testing.T) {
	msg := NewUserMessage("héllo wörld, this is a long question", "")

	preview := msg.Preview(10)
	if len([]rune(preview)) > 10 {
		t.Errorf("Preview rune length = %d, want <= 10", len([]rune(preview)))
	}
}
