// Package risk classifies customer feedback into a severity level.
//
// Three independent strategies look at the overall rating, the free-text
// comment and the aspect ratings. The final level is the highest one any
// strategy reports: a strategy can escalate, never de-escalate.
package risk

import "fmt"

// Level is a feedback severity, ordered Low < Medium < High
type Level int

const (
	Low Level = iota
	Medium
	High
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel converts the stored name of a level back into a Level
func ParseLevel(s string) (Level, error) {
	switch s {
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	}
	return Low, fmt.Errorf("unknown risk level %q", s)
}

// Max returns the more severe of two levels
func Max(a, b Level) Level {
	if b > a {
		return b
	}
	return a
}
