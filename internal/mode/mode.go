// Copyright Peton Labs, 2026. All rights reserved.

// Package mode persists the acquisition strategy and aggregate run
// counters between invocations.
package mode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

// Strategy selects how content is acquired for each item.
type Strategy string

const (
	// StrategyContent walks the text-source chain directly.
	StrategyContent Strategy = "content"
	// StrategyDocument prefers cached or downloadable whole documents,
	// falling back to the text chain.
	StrategyDocument Strategy = "document"
)

// State is the persisted strategy record. One JSON file, overwritten
// on every save.
type State struct {
	Strategy     Strategy  `json:"strategy"`
	LastUsedAt   time.Time `json:"last_used_at"`
	Processed    int       `json:"processed"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	ResumeMarker string    `json:"resume_marker,omitempty"`
	CacheEnabled bool      `json:"cache_enabled"`
	Notes        string    `json:"notes,omitempty"`
}

// Manager reads and writes the state file.
type Manager struct {
	path string
}

func NewManager(cfg types.ModeConfig) *Manager {
	return &Manager{path: cfg.StatePath}
}

// Load returns the saved state, or nil when no state file exists yet.
func (m *Manager) Load() (*State, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", m.path, err)
	}
	return &st, nil
}

// Save writes the state, stamping LastUsedAt and creating parent
// directories as needed.
func (m *Manager) Save(st *State) error {
	st.LastUsedAt = time.Now().UTC()

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	return os.WriteFile(m.path, data, 0o644)
}

// UpdateCounters folds one run's counts into the saved state and
// persists it.
func (m *Manager) UpdateCounters(st *State, processed, succeeded, failed int, resumeMarker string) error {
	st.Processed += processed
	st.Succeeded += succeeded
	st.Failed += failed
	if resumeMarker != "" {
		st.ResumeMarker = resumeMarker
	}
	return m.Save(st)
}

// ChooseStrategy maps user input to a strategy, defaulting to the
// current saved one (or content acquisition) on empty input.
func ChooseStrategy(current *State, input string) (Strategy, error) {
	switch input {
	case "":
		if current != nil && current.Strategy != "" {
			return current.Strategy, nil
		}
		return StrategyContent, nil
	case "1", string(StrategyContent):
		return StrategyContent, nil
	case "2", string(StrategyDocument):
		return StrategyDocument, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want 1/content or 2/document)", input)
	}
}
