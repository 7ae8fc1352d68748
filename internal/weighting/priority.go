package weighting

import (
	"fmt"
	"strings"
)

// Priority is the qualitative tag carried by a mapping edge.
type Priority int

const (
	Unset Priority = iota
	Low
	Medium
	High
)

// BaseValues is the priority → base value table shared by both tiers.
var BaseValues = map[Priority]float64{
	High:   0.5,
	Medium: 0.3,
	Low:    0.2,
}

// Base returns the base value of p. Unset has no weight.
func (p Priority) Base() float64 {
	switch p {
	case High:
		return BaseValues[High]
	case Medium:
		return BaseValues[Medium]
	case Low:
		return BaseValues[Low]
	default:
		return 0
	}
}

// Tag is the single letter stored on the edge row ("" for Unset).
func (p Priority) Tag() string {
	switch p {
	case High:
		return "h"
	case Medium:
		return "m"
	case Low:
		return "l"
	default:
		return ""
	}
}

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "unset"
	}
}

func (p Priority) IsSet() bool { return p != Unset }

// ParsePriority maps "h"/"m"/"l" (any case, also the long names) to a Priority.
// The empty string is Unset; anything else is rejected.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Unset, nil
	case "h", "high":
		return High, nil
	case "m", "medium":
		return Medium, nil
	case "l", "low":
		return Low, nil
	default:
		return Unset, fmt.Errorf("invalid priority %q: must be one of h, m, l", s)
	}
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.Tag()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
