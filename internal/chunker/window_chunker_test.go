package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
)

func collect(t *testing.T, text string, size, overlap int) []domain.Chunk {
	t.Helper()
	seq, err := Split("doc", text, size, overlap)
	require.NoError(t, err)
	var out []domain.Chunk
	for ch := range seq {
		out = append(out, ch)
	}
	return out
}

func uniqueText(words int) string {
	var b strings.Builder
	marks := []string{".", "?", "!", ",", ""}
	for i := 0; i < words; i++ {
		fmt.Fprintf(&b, "w%d%s ", i, marks[i%len(marks)])
		if i%17 == 16 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestSplitRejectsBadParameters(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap above size", 10, 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split("doc", "text", tc.size, tc.overlap)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
			_, err = NewWindowChunker(tc.size, tc.overlap)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestSplitCoversTextWithinSize(t *testing.T) {
	text := uniqueText(600)
	params := []struct{ size, overlap int }{
		{1, 0}, {7, 3}, {50, 0}, {50, 49}, {120, 30}, {1000, 200}, {5000, 10},
	}
	for _, p := range params {
		t.Run(fmt.Sprintf("size=%d overlap=%d", p.size, p.overlap), func(t *testing.T) {
			chunks := collect(t, text, p.size, p.overlap)
			require.NotEmpty(t, chunks)

			covered := make([]bool, len(text))
			from := 0
			for i, ch := range chunks {
				assert.Equal(t, i, ch.Index)
				assert.NotEmpty(t, ch.Text)
				assert.LessOrEqual(t, len([]rune(ch.Text)), p.size)

				pos := strings.Index(text[from:], ch.Text)
				require.GreaterOrEqual(t, pos, 0, "chunk %d not found in order", i)
				pos += from
				for j := pos; j < pos+len(ch.Text); j++ {
					covered[j] = true
				}
				from = pos + 1
			}
			for i, r := range text {
				if !unicode.IsSpace(r) {
					require.True(t, covered[i], "character %d (%q) dropped", i, r)
				}
			}
		})
	}
}

func TestSplitEmptyAndShortText(t *testing.T) {
	assert.Empty(t, collect(t, "", 10, 2))
	assert.Empty(t, collect(t, "   \n\t  ", 3, 1))

	chunks := collect(t, "  short text. more  ", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text. more", chunks[0].Text)
}

func TestSplitSnapsToSentenceEnd(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 26; i++ {
		s := fmt.Sprintf("Sentence %02d", i)
		for len(s) < 98 {
			s += " x"
		}
		s = s[:98] + ". "
		b.WriteString(s)
	}
	text := b.String()
	require.Len(t, text, 2600)

	chunks := collect(t, text, 1000, 200)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(ch.Text, "."), "chunk %d ends with %q", ch.Index, ch.Text[len(ch.Text)-5:])
	}
}

func TestSplitFrontLoadedPunctuationStillTerminates(t *testing.T) {
	text := "A." + strings.Repeat("b", 300)
	chunks := collect(t, text, 100, 50)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "A.", chunks[0].Text)
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last.Text))
}

func TestSplitStopsEarly(t *testing.T) {
	seq, err := Split("doc", uniqueText(400), 40, 10)
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)

	// restartable
	var again []domain.Chunk
	for ch := range seq {
		again = append(again, ch)
	}
	assert.Greater(t, len(again), 3)
}

func TestWindowChunkerChunk(t *testing.T) {
	c, err := NewWindowChunker(DefaultChunkSize, DefaultOverlap)
	require.NoError(t, err)

	chunks, err := c.Chunk(domain.Document{ID: "d1", Content: uniqueText(500)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, "d1", ch.DocumentID)
	}
}
