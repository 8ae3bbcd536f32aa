package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Channel copy limits.
const (
	SubjectMaxChars  = 50
	EmailMaxWords    = 110
	WhatsAppMinWords = 25
	WhatsAppMaxWords = 30
	PushMinWords     = 12
	PushMaxWords     = 14
	MaxCopyChars     = 1200
)

var bannedPhrases = []string{
	"guaranteed",
	"last chance",
	"only today",
	"free for everyone",
	"limited time",
}

// BannedPhrases lists phrases outreach copy must never contain.
func BannedPhrases() []string {
	return append([]string(nil), bannedPhrases...)
}

// SafetyError lists every brand-safety violation in a piece of copy.
type SafetyError struct {
	Violations []string
}

func (e *SafetyError) Error() string {
	return "brand safety: " + strings.Join(e.Violations, "; ")
}

// CheckSafety rejects copy containing banned phrases or longer than
// MaxCopyChars. Matching is case-insensitive.
func CheckSafety(text string) error {
	var violations []string
	lower := strings.ToLower(text)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			violations = append(violations, fmt.Sprintf("banned phrase %q", phrase))
		}
	}
	if n := utf8.RuneCountInString(text); n > MaxCopyChars {
		violations = append(violations, fmt.Sprintf("%d characters exceeds %d", n, MaxCopyChars))
	}
	if len(violations) > 0 {
		return &SafetyError{Violations: violations}
	}
	return nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// lengthWarnings reports channel-length rule breaches. These are advisory;
// CheckSafety is the hard gate.
func lengthWarnings(d *Draft) []string {
	var w []string
	if n := utf8.RuneCountInString(d.Email.Subject); n > SubjectMaxChars {
		w = append(w, fmt.Sprintf("email subject is %d characters (max %d)", n, SubjectMaxChars))
	}
	if n := wordCount(d.Email.Body); n > EmailMaxWords {
		w = append(w, fmt.Sprintf("email body is %d words (max %d)", n, EmailMaxWords))
	}
	if n := wordCount(d.WhatsApp); n < WhatsAppMinWords || n > WhatsAppMaxWords {
		w = append(w, fmt.Sprintf("whatsapp message is %d words (want %d-%d)", n, WhatsAppMinWords, WhatsAppMaxWords))
	}
	if n := wordCount(d.Push); n < PushMinWords || n > PushMaxWords {
		w = append(w, fmt.Sprintf("push message is %d words (want %d-%d)", n, PushMinWords, PushMaxWords))
	}
	return w
}
