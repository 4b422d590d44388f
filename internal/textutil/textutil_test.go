package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateShortStringUnchanged(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))
}

func TestTruncateHardCap(t *testing.T) {
	s := strings.Repeat("a", 50)
	got := Truncate(s, 10)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), 13)
}

func TestTruncatePrefersSentenceBoundary(t *testing.T) {
	s := "First sentence. Second sentence. Third sentence that runs long"
	got := Truncate(s, 40)
	assert.Equal(t, "First sentence. Second sentence. ...", got)
}

func TestTruncateZeroBudget(t *testing.T) {
	assert.Equal(t, "", Truncate("anything", 0))
}

func TestTruncateMultibyte(t *testing.T) {
	s := strings.Repeat("研", 30)
	got := Truncate(s, 10)
	assert.LessOrEqual(t, len([]rune(got)), 13)
}
