package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySentiment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"hype message", "POG that was insane", 1},
		{"negative message", "this is so boring, rip", -1},
		{"neutral question", "what game is this", 0},
		{"mixed votes cancel out", "nice but boring", 0},
		{"punctuation trimmed", "gg!!", 1},
		{"case insensitive", "KEKW", 1},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text).Sentiment)
		})
	}
}

func TestClassifyEmoteOnly(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"single camel case emote", "PogChamp", true},
		{"several emotes", "KEKW OMEGALUL PogChamp", true},
		{"emoticon", ":) <3", true},
		{"plain words", "hello there", false},
		{"mixed emote and words", "PogChamp what a play", false},
		{"empty is not emote only", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text).EmoteOnly)
		})
	}
}

func TestIsBot(t *testing.T) {
	assert.True(t, IsBot("Nightbot"))
	assert.True(t, IsBot("streamelements"))
	assert.False(t, IsBot("regular_viewer"))
}
