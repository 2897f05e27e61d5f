package delivery

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkLaw(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
	}{
		{"exact multiple", strings.Repeat("a", 4000), 2000},
		{"remainder", strings.Repeat("b", 4001), 2000},
		{"shorter than max", "short report", 2000},
		{"multibyte", strings.Repeat("çğüşö€", 50), 7},
		{"single rune segments", "abc", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := Chunk(tt.text, tt.max)

			length := utf8.RuneCountInString(tt.text)
			want := (length + tt.max - 1) / tt.max
			require.Len(t, segments, want)

			for _, segment := range segments {
				assert.LessOrEqual(t, utf8.RuneCountInString(segment), tt.max)
				assert.True(t, utf8.ValidString(segment))
			}
			assert.Equal(t, tt.text, strings.Join(segments, ""))
		})
	}
}

func TestChunkEmptyAndUnbounded(t *testing.T) {
	assert.Empty(t, Chunk("", 10))
	assert.Equal(t, []string{"no limit"}, Chunk("no limit", 0))
}
