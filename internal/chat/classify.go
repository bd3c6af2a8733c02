package chat

import (
	"regexp"
	"strings"
)

// knownBots are senders excluded from raw message sampling. Their messages
// still count toward activity buckets.
var knownBots = map[string]bool{
	"nightbot":       true,
	"streamelements": true,
	"streamlabs":     true,
	"moobot":         true,
	"fossabot":       true,
	"wizebot":        true,
	"botisimo":       true,
	"soundalerts":    true,
}

// IsBot reports whether the username belongs to a known chat bot.
func IsBot(username string) bool {
	return knownBots[strings.ToLower(username)]
}

var positiveWords = map[string]bool{
	"pog": true, "poggers": true, "pogchamp": true, "hype": true,
	"lets": true, "letsgo": true, "gg": true, "nice": true, "love": true,
	"amazing": true, "insane": true, "clip": true, "lol": true, "lmao": true,
	"kekw": true, "omegalul": true, "lul": true, "w": true,
}

var negativeWords = map[string]bool{
	"boring": true, "bad": true, "trash": true, "lost": true, "rip": true,
	"sadge": true, "pepehands": true, "notlikethis": true, "l": true,
	"throw": true, "thrown": true, "oof": true,
}

// emoteToken matches tokens that are structurally emote-like: CamelCase
// words, all-caps words of 3+, or common emoticon punctuation.
var emoteToken = regexp.MustCompile(`^([A-Z][a-z]+[A-Z]\w*|[A-Z]{3,}|[:;][\)\(DPpoO]|<3)$`)

// Classification is the derived shape of one chat message.
type Classification struct {
	EmoteOnly bool
	Sentiment int // -1, 0 or 1
}

// Classify derives sentiment and emote-only structure from message text.
// Sentiment is a coarse keyword vote; ties and unknown vocabulary are
// neutral.
func Classify(text string) Classification {
	fields := strings.Fields(text)
	var c Classification
	if len(fields) > 0 {
		c.EmoteOnly = true
		for _, f := range fields {
			if !emoteToken.MatchString(f) {
				c.EmoteOnly = false
				break
			}
		}
	}
	score := 0
	for _, f := range fields {
		w := strings.ToLower(strings.Trim(f, "!?.,"))
		if positiveWords[w] {
			score++
		} else if negativeWords[w] {
			score--
		}
	}
	switch {
	case score > 0:
		c.Sentiment = 1
	case score < 0:
		c.Sentiment = -1
	}
	return c
}
