package filter

import "strings"

// CupPhases orders cup round labels; a label's phase is its 1-based position.
var CupPhases = []string{ //nolint:gochecknoglobals // fixed lookup table
	"1st",
	"2nd",
	"3rd",
	"Round of 32",
	"Round of 16",
	"Quarter",
	"Semi",
	"Final",
}

// PhaseOf maps an upstream round label such as "3rd Round" or
// "Quarter-finals" to its phase. Unknown labels are phase 0.
func PhaseOf(round string) int {
	text := strings.ToLower(round)
	if text == "" {
		return 0
	}
	for i, label := range CupPhases {
		if strings.Contains(text, strings.ToLower(label)) {
			return i + 1
		}
	}
	return 0
}
