// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// =============================================================================
// REASONING LEVEL SELECTOR
// =============================================================================

const (
	// selectionTTL bounds how long a cached per-document level choice is
	// reused before the picker defaults are consulted again.
	selectionTTL = 12 * time.Hour

	selectionSweep = 30 * time.Minute
)

// Selector remembers the last reasoning level chosen per document and
// provider so that switching models back and forth keeps the user's pick.
type Selector struct {
	cache *gocache.Cache
}

// NewSelector creates a selector with an empty selection cache.
func NewSelector() *Selector {
	return &Selector{cache: gocache.New(selectionTTL, selectionSweep)}
}

// selectionKey namespaces cached choices by document and provider.
func selectionKey(itemID int64, kind Kind) string {
	return fmt.Sprintf("%d:%s", itemID, kind)
}

// SelectReasoningLevel resolves the reasoning level to use for a document
// and profile. A previously chosen level is reused when it is still present
// and enabled in the profile; otherwise the first enabled level is chosen
// and cached. Returns nil when the profile has no usable levels.
func (s *Selector) SelectReasoningLevel(itemID int64, profile Profile) *Level {
	if profile.Provider == Unsupported || len(profile.Levels) == 0 {
		return nil
	}

	key := selectionKey(itemID, profile.Provider)
	if prior, ok := s.cache.Get(key); ok {
		if lvl := findEnabled(profile.Levels, prior.(string)); lvl != nil {
			return lvl
		}
	}

	lvl := firstEnabled(profile.Levels)
	if lvl == nil {
		return nil
	}
	s.cache.SetDefault(key, lvl.Level)
	return lvl
}

// Remember records an explicit user choice so future selections honor it.
func (s *Selector) Remember(itemID int64, kind Kind, level string) {
	s.cache.SetDefault(selectionKey(itemID, kind), level)
}

// findEnabled returns the level matching the wire value, if enabled.
func findEnabled(levels []Level, value string) *Level {
	for i := range levels {
		if levels[i].Level == value && levels[i].Enabled {
			return &levels[i]
		}
	}
	return nil
}

// firstEnabled returns the first enabled level in picker order.
func firstEnabled(levels []Level) *Level {
	for i := range levels {
		if levels[i].Enabled {
			return &levels[i]
		}
	}
	return nil
}
