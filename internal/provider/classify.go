// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider classifies model names into reasoning-capability profiles.
package provider

import (
	"strings"
)

// =============================================================================
// PROVIDER KIND
// =============================================================================

// Kind identifies the model family a reasoning configuration targets.
type Kind int

const (
	// Unsupported means no classification rule matched; no reasoning
	// configuration is sent for such models.
	Unsupported Kind = iota
	// OpenAI covers the gpt-* and o-series families.
	OpenAI
	// Anthropic covers the claude family.
	Anthropic
	// DeepSeek covers the deepseek family.
	DeepSeek
)

// String returns the human-readable name of the provider kind.
func (k Kind) String() string {
	switch k {
	case OpenAI:
		return "openai"
	case Anthropic:
		return "anthropic"
	case DeepSeek:
		return "deepseek"
	default:
		return "unsupported"
	}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify maps a model name to its provider kind using case-insensitive
// family name fragments. Pure function; unknown names return Unsupported.
//
// Classification rules (in order of priority):
//  1. DeepSeek: name contains "deepseek"
//  2. Anthropic: name contains "claude"
//  3. OpenAI: name contains "gpt", or starts with an o-series prefix
//     ("o1", "o3", "o4")
func Classify(modelName string) Kind {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return Unsupported
	}

	if strings.Contains(name, "deepseek") {
		return DeepSeek
	}
	if strings.Contains(name, "claude") {
		return Anthropic
	}
	if strings.Contains(name, "gpt") ||
		strings.HasPrefix(name, "o1") ||
		strings.HasPrefix(name, "o3") ||
		strings.HasPrefix(name, "o4") {
		return OpenAI
	}

	return Unsupported
}

// =============================================================================
// REASONING PROFILE
// =============================================================================

// Level is one selectable reasoning effort for a provider.
type Level struct {
	// Level is the wire value sent to the backend (e.g. "medium").
	Level string
	// Enabled marks whether the level can currently be selected.
	Enabled bool
	// Label is the human-readable name shown in a picker.
	Label string
}

// Profile is the reasoning-capability profile derived from a model name.
type Profile struct {
	Provider Kind
	Levels   []Level
}

// ProfileFor derives the reasoning profile for a model name. Unsupported
// models get an empty profile.
func ProfileFor(modelName string) Profile {
	kind := Classify(modelName)
	return Profile{Provider: kind, Levels: levelsFor(kind)}
}

// levelsFor returns the ordered levels available for a provider kind.
func levelsFor(kind Kind) []Level {
	switch kind {
	case OpenAI:
		return []Level{
			{Level: "low", Enabled: true, Label: "Low"},
			{Level: "medium", Enabled: true, Label: "Medium"},
			{Level: "high", Enabled: true, Label: "High"},
		}
	case Anthropic:
		return []Level{
			{Level: "low", Enabled: true, Label: "Brief"},
			{Level: "medium", Enabled: true, Label: "Balanced"},
			{Level: "high", Enabled: true, Label: "Extended"},
		}
	case DeepSeek:
		// DeepSeek reasoners expose a single always-on trace.
		return []Level{
			{Level: "default", Enabled: true, Label: "Default"},
		}
	default:
		return nil
	}
}
