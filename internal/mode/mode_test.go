package mode

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petonlabs/systematic-review-data-extraction/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(types.ModeConfig{
		StatePath: filepath.Join(t.TempDir(), "state", "mode.json"),
	})
}

func TestLoadMissingFile(t *testing.T) {
	m := newTestManager(t)

	st, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestSaveRoundTrip(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Save(&State{
		Strategy:     StrategyDocument,
		CacheEnabled: true,
		Notes:        "switched after cache warm-up",
	}))

	st, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, StrategyDocument, st.Strategy)
	assert.True(t, st.CacheEnabled)
	assert.Equal(t, "switched after cache warm-up", st.Notes)
	assert.False(t, st.LastUsedAt.IsZero())
}

func TestUpdateCounters(t *testing.T) {
	m := newTestManager(t)

	st := &State{Strategy: StrategyContent, Processed: 10, Succeeded: 8, Failed: 2}
	require.NoError(t, m.UpdateCounters(st, 5, 4, 1, "42"))

	reloaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 15, reloaded.Processed)
	assert.Equal(t, 12, reloaded.Succeeded)
	assert.Equal(t, 3, reloaded.Failed)
	assert.Equal(t, "42", reloaded.ResumeMarker)
}

func TestChooseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		current *State
		input   string
		want    Strategy
		wantErr bool
	}{
		{name: "empty defaults to content", input: "", want: StrategyContent},
		{name: "empty keeps saved strategy", current: &State{Strategy: StrategyDocument}, input: "", want: StrategyDocument},
		{name: "numeric content", input: "1", want: StrategyContent},
		{name: "numeric document", input: "2", want: StrategyDocument},
		{name: "named content", input: "content", want: StrategyContent},
		{name: "named document", input: "document", want: StrategyDocument},
		{name: "unknown input", input: "3", wantErr: true},
		{name: "garbage input", input: "cached", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChooseStrategy(tt.current, tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
