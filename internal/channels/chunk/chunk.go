// Package chunk splits outbound text into pieces that fit a platform's
// message size limit.
package chunk

import (
	"strings"
	"unicode"

	"github.com/abhinav155942/wobble/pkg/models"
)

// Limits holds the maximum message length per channel, in bytes. Zero means
// the channel takes messages of any length.
var Limits = map[models.ChannelType]int{
	models.ChannelTelegram:  4096,
	models.ChannelWhatsApp:  65536,
	models.ChannelInstagram: 1000,
	models.ChannelEmail:     0,
	models.ChannelYouTube:   10000,
}

// Limit returns the outbound size limit for a channel, zero for unlimited.
func Limit(channel models.ChannelType) int {
	return Limits[channel]
}

// Text splits text into chunks of at most limit bytes. Breaks land on the
// last newline inside the window, else the last whitespace, else mid-word.
// A limit of zero or less returns the text whole.
func Text(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	rest := text
	for len(rest) > limit {
		cut := breakIndex(rest[:limit])
		piece := strings.TrimRight(rest[:cut], " \t")
		if piece != "" {
			chunks = append(chunks, piece)
		}
		if cut < len(rest) && unicode.IsSpace(rune(rest[cut])) {
			cut++
		}
		rest = strings.TrimLeft(rest[cut:], " \t")
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// ForChannel splits text using the channel's configured limit.
func ForChannel(text string, channel models.ChannelType) []string {
	return Text(text, Limit(channel))
}

// breakIndex returns where to cut a full window: the last newline if there
// is one, otherwise the last whitespace, otherwise the window end.
func breakIndex(window string) int {
	newline, space := -1, -1
	for i := 0; i < len(window); i++ {
		c := window[i]
		if c == '\n' {
			newline = i
		} else if unicode.IsSpace(rune(c)) {
			space = i
		}
	}
	if newline > 0 {
		return newline
	}
	if space > 0 {
		return space
	}
	return len(window)
}
