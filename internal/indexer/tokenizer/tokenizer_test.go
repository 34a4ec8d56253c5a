package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"stop words removed", "the cat sat", "cat sat"},
		{"case and punctuation", "Hello,   WORLD!", "hello world"},
		{"apostrophe joins word", "don't stop", "dont stop"},
		{"apostrophe into stop word", "it's fine", "fine"},
		{"accents folded", "Café crème", "cafe creme"},
		{"digits kept", "Model X100 v2", "model x100 v2"},
		{"only stop words", "The and a of", ""},
		{"empty", "", ""},
		{"punctuation only", "?!... --", ""},
		{"tabs and newlines", "red\tapple\nred\r\napple", "red apple red apple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	for _, in := range []string{"The Quick, brown fox!", "Café au lait", "don't-stop me now"} {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), in)
	}
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"quick", "brown", "fox"}, Words("The quick brown fox"))
	assert.Empty(t, Words("   "))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.True(t, IsStopWord("don"))
	assert.False(t, IsStopWord("dont"))
	assert.False(t, IsStopWord("The"))
}
