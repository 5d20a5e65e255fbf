package strlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"blank", "", nil},
		{"only separators", " , ,", nil},
		{"single", "localhost:9092", []string{"localhost:9092"}},
		{"trims and drops empties", " a ,, b ", []string{"a", "b"}},
		{"keeps first occurrence", "b,a,b,c,a", []string{"b", "a", "c"}},
		{"case sensitive", "Doc,doc", []string{"Doc", "doc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.raw))
		})
	}
}

func TestSplitLower(t *testing.T) {
	assert.Equal(t, []string{"document", "facial_similarity_video"},
		SplitLower(" Document,FACIAL_SIMILARITY_VIDEO , document"))
	assert.Nil(t, SplitLower(""))
}
