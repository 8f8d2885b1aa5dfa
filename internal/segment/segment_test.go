package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTrimsAndDropsNoise(t *testing.T) {
	s := New(0)

	raw := "  Opus One 2018, Napa Valley, USA - $315  \r\n\n--\nRED WINES\n\t Château Margaux 2015 - $425\n"
	lines := s.Split(raw)

	require.Len(t, lines, 3)
	assert.Equal(t, "Opus One 2018, Napa Valley, USA - $315", lines[0].Text)
	assert.Equal(t, "RED WINES", lines[1].Text)
	assert.Equal(t, "Château Margaux 2015 - $425", lines[2].Text)

	for i, l := range lines {
		assert.Equal(t, i, l.Index)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s := New(4)
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("\n\n\r\n"))
	assert.Empty(t, s.Split("ab\ncd\n"))
}

func TestSplitCustomMinLength(t *testing.T) {
	s := New(10)
	lines := s.Split("short\na much longer wine entry\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "a much longer wine entry", lines[0].Text)
}
