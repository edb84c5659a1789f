// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		model string
		want  Kind
	}{
		{"deepseek-r1", DeepSeek},
		{"claude-3.7-sonnet", Anthropic},
		{"gpt-5-mini", OpenAI},
		{"random-model", Unsupported},

		// Case-insensitive and family fragment matching.
		{"DeepSeek-Chat", DeepSeek},
		{"CLAUDE-opus", Anthropic},
		{"GPT-4o", OpenAI},
		{"o1-preview", OpenAI},
		{"o3-mini", OpenAI},
		{"o4-mini-high", OpenAI},
		{"  gpt-5  ", OpenAI},
		{"", Unsupported},
		{"llama-3-70b", Unsupported},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := Classify(tt.model); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestProfileFor(t *testing.T) {
	p := ProfileFor("gpt-5-mini")
	if p.Provider != OpenAI {
		t.Errorf("Provider = %v, want OpenAI", p.Provider)
	}
	if len(p.Levels) != 3 {
		t.Errorf("len(Levels) = %d, want 3", len(p.Levels))
	}

	p = ProfileFor("random-model")
	if p.Provider != Unsupported {
		t.Errorf("Provider = %v, want Unsupported", p.Provider)
	}
	if len(p.Levels) != 0 {
		t.Errorf("unsupported profile has %d levels, want 0", len(p.Levels))
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{OpenAI, "openai"},
		{Anthropic, "anthropic"},
		{DeepSeek, "deepseek"},
		{Unsupported, "unsupported"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
