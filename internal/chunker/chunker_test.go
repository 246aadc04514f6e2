package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

func TestNew_RejectsOverlapNotSmallerThanSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 100, 20, false},
		{"zero overlap", 100, 0, false},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
		{"negative overlap", 100, -1, true},
		{"zero size", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, qerrors.ErrCodeChunkOverlap, qerrors.GetCode(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSplit_EmptyInputProducesZeroChunks(t *testing.T) {
	c, err := New(100, 20)
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\n\t  "))
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	c, err := New(100, 20)
	require.NoError(t, err)

	spans := c.Split("machine learning basics")
	require.Len(t, spans, 1)
	assert.Equal(t, "machine learning basics", spans[0].Text)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len("machine learning basics"), spans[0].End)
	assert.Equal(t, 0, spans[0].Seq)
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	c, err := New(40, 0)
	require.NoError(t, err)

	text := "first paragraph here.\n\nsecond paragraph follows after a break."
	spans := c.Split(text)

	require.GreaterOrEqual(t, len(spans), 2)
	// The first chunk ends at the paragraph break, not mid-word.
	assert.Equal(t, "first paragraph here.\n\n", spans[0].Text)
	assert.Equal(t, 0, spans[0].Start)
}

func TestSplit_Deterministic(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 20)
	a := c.Split(text)
	b := c.Split(text)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
}

func TestSplit_OffsetsReconstructText(t *testing.T) {
	c, err := New(40, 10)
	require.NoError(t, err)

	text := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen"
	runes := []rune(text)
	for _, s := range c.Split(text) {
		assert.Equal(t, string(runes[s.Start:s.End]), s.Text)
	}
}

func TestSplit_ConsecutiveChunksOverlap(t *testing.T) {
	c, err := New(40, 15)
	require.NoError(t, err)

	text := strings.Repeat("word ", 50)
	spans := c.Split(text)
	require.Greater(t, len(spans), 1)

	for i := 1; i < len(spans); i++ {
		// Next chunk starts before the previous one ends (overlap) but
		// always makes forward progress.
		assert.Less(t, spans[i].Start, spans[i-1].End)
		assert.Greater(t, spans[i].Start, spans[i-1].Start)
		// Overlap never exceeds the configured budget.
		assert.LessOrEqual(t, spans[i-1].End-spans[i].Start, c.Overlap())
	}
}

func TestSplit_LongWordFallsBackToCharacterSplit(t *testing.T) {
	c, err := New(10, 0)
	require.NoError(t, err)

	spans := c.Split(strings.Repeat("x", 25))
	require.Len(t, spans, 3)
	assert.Equal(t, 10, len(spans[0].Text))
	assert.Equal(t, 10, len(spans[1].Text))
	assert.Equal(t, 5, len(spans[2].Text))
}

func TestSplit_SequentialSeq(t *testing.T) {
	c, err := New(30, 5)
	require.NoError(t, err)

	spans := c.Split(strings.Repeat("lorem ipsum dolor sit amet ", 10))
	for i, s := range spans {
		assert.Equal(t, i, s.Seq)
	}
}

func TestSplit_UnicodeOffsetsAreRuneBased(t *testing.T) {
	c, err := New(12, 0)
	require.NoError(t, err)

	text := "héllo wörld ünïcode tèxt hère"
	runes := []rune(text)
	for _, s := range c.Split(text) {
		assert.Equal(t, string(runes[s.Start:s.End]), s.Text)
	}
}
