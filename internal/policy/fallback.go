package policy

import (
	"hash/fnv"
	"strings"
)

// DefaultResourceText is the pre-approved crisis resource message.
const DefaultResourceText = "If you are in immediate danger, please call your local emergency number (911 in the US) now. " +
	"You can call or text 988 to reach the Suicide & Crisis Lifeline (US), or text HOME to 741741 to reach the Crisis Text Line. " +
	"Outside the US, findahelpline.com lists free, confidential services near you. You don't have to go through this alone."

var defaultSupportLines = []string{
	"I'm having trouble responding right now, but what you're going through matters.",
	"I can't give you a full reply at the moment, and I don't want that to leave you without support.",
	"Something went wrong on my side, and I want to make sure you still have people to reach.",
}

var defaultRetryLines = []string{
	"Sorry, I couldn't respond just now. Please try again in a moment.",
	"I'm having trouble replying right now. Please send your message again shortly.",
	"Something went wrong on my side. Give it a moment and try again.",
}

// rotate picks one of lines deterministically from key.
func rotate(lines []string, key string) string {
	if len(lines) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return lines[int(h.Sum32()%uint32(len(lines)))]
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
