// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prefs

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s, path
}

func TestMissingFileYieldsEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.GetString(KeyPreferredModel); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetString on empty store = %v, want ErrNotFound", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.SetString(KeyPreferredModel, "gpt-5-mini"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}

	got, err := s.GetString(KeyPreferredModel)
	if err != nil {
		t.Fatalf("GetString failed: %v", err)
	}
	if got != "gpt-5-mini" {
		t.Errorf("GetString = %q, want %q", got, "gpt-5-mini")
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.SetString(KeyPreferredModel, "claude-3.7-sonnet"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := s.SetString(ItemKey(42, KeyItemModel), "deepseek-r1"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got, _ := reopened.GetString(KeyPreferredModel); got != "claude-3.7-sonnet" {
		t.Errorf("global preference = %q after reopen", got)
	}
	if got, _ := reopened.GetString(ItemKey(42, KeyItemModel)); got != "deepseek-r1" {
		t.Errorf("item preference = %q after reopen", got)
	}
}

func TestItemKey(t *testing.T) {
	if got := ItemKey(42, KeyItemModel); got != "item.42.model" {
		t.Errorf("ItemKey = %q, want %q", got, "item.42.model")
	}
	if got := ItemKey(-3, "reasoning"); got != "item.-3.reasoning" {
		t.Errorf("ItemKey = %q, want %q", got, "item.-3.reasoning")
	}
}

func TestItemKeysAreIndependent(t *testing.T) {
	s, _ := newTestStore(t)

	s.SetString(ItemKey(1, KeyItemModel), "gpt-5-mini")
	s.SetString(ItemKey(2, KeyItemModel), "deepseek-r1")

	if got, _ := s.GetString(ItemKey(1, KeyItemModel)); got != "gpt-5-mini" {
		t.Errorf("item 1 = %q", got)
	}
	if got, _ := s.GetString(ItemKey(2, KeyItemModel)); got != "deepseek-r1" {
		t.Errorf("item 2 = %q", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	type windowState struct {
		Width  int  `json:"width"`
		Pinned bool `json:"pinned"`
	}

	if err := s.SetJSON("window", windowState{Width: 420, Pinned: true}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got windowState
	if err := s.GetJSON("window", &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if got.Width != 420 || !got.Pinned {
		t.Errorf("GetJSON = %+v", got)
	}
}

func TestGetStringTypeMismatch(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.SetJSON("count", 7); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	if _, err := s.GetString("count"); err == nil {
		t.Error("GetString on a number should fail")
	}
}

func TestDelete(t *testing.T) {
	s, path := newTestStore(t)

	s.SetString(KeyPreferredModel, "gpt-5-mini")
	if err := s.Delete(KeyPreferredModel); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.GetString(KeyPreferredModel); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted key = %v, want ErrNotFound", err)
	}

	// Deletion is durable.
	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, err := reopened.GetString(KeyPreferredModel); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted key after reopen = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is a no-op.
	if err := s.Delete("never-set"); err != nil {
		t.Errorf("Delete missing key = %v, want nil", err)
	}
}
