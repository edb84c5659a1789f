// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prefs provides a file-backed preference store.
//
// Preferences are scoped: global keys hold application-wide choices (the
// preferred model, for example) while item keys hold per-document choices.
// The whole store is a single JSON file written atomically, so a crash
// mid-save never corrupts existing preferences.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jeranaias/pagemark/internal/util"
)

// =============================================================================
// WELL-KNOWN KEYS
// =============================================================================

const (
	// KeyPreferredModel is the global preferred-model preference.
	KeyPreferredModel = "preferred_model"

	// KeyItemModel is the per-document model preference.
	KeyItemModel = "model"
)

// ErrNotFound is returned when a preference key has no value.
var ErrNotFound = errors.New("preference not found")

// =============================================================================
// STORE
// =============================================================================

// Store is a thread-safe preference store persisted as one JSON file.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]json.RawMessage
}

// NewStore opens the preference store at path, loading existing values.
// A missing file yields an empty store.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		values: make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return s, nil
}

// ItemKey builds the namespaced key for a per-document preference.
func ItemKey(itemID int64, name string) string {
	return "item." + util.Int64ToString(itemID) + "." + name
}

// =============================================================================
// SCALAR ACCESS
// =============================================================================

// GetString returns the string value for key, or ErrNotFound.
func (s *Store) GetString(key string) (string, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("preference %q is not a string: %w", key, err)
	}
	return v, nil
}

// SetString stores a string value for key and persists the store.
func (s *Store) SetString(key, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.set(key, raw)
}

// =============================================================================
// JSON ACCESS
// =============================================================================

// GetJSON unmarshals the value for key into out, or returns ErrNotFound.
func (s *Store) GetJSON(key string, out any) error {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode preference %q: %w", key, err)
	}
	return nil
}

// SetJSON marshals value under key and persists the store.
func (s *Store) SetJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %q: %w", key, err)
	}
	return s.set(key, raw)
}

// Delete removes a key and persists the store. Deleting a missing key is
// a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.saveLocked()
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (s *Store) set(key string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return s.saveLocked()
}

// saveLocked writes the store to disk. Caller holds s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
