// Copyright Peton Labs, 2026. All rights reserved.

package main

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 40))
	assert.Equal(t, "exactly-ten", truncate("exactly-ten", 11))
	assert.Equal(t, "a long ti...", truncate("a long title that keeps going", 12))
}

func TestTruncateMultiByteTitles(t *testing.T) {
	got := truncate("Längsschnittstudie über Therapieeffekte", 20)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 20, len([]rune(got)))
	assert.Equal(t, "Längsschnittstudi...", got)
}
