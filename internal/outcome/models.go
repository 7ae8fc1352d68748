package outcome

import (
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/weighting"
)

// Tier is one level of the outcome hierarchy.
type Tier string

const (
	TierAC Tier = "ac"
	TierLO Tier = "lo"
	TierRO Tier = "ro"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierAC:
		return TierAC, nil
	case TierLO:
		return TierLO, nil
	case TierRO:
		return TierRO, nil
	default:
		return "", apperr.Validation("invalid tier %q: must be ac, lo or ro", s)
	}
}

// Label is the human name used in messages.
func (t Tier) Label() string {
	switch t {
	case TierAC:
		return "assessment criteria"
	case TierLO:
		return "learning outcome"
	case TierRO:
		return "report outcome"
	default:
		return string(t)
	}
}

func (t Tier) nodeTable() string {
	switch t {
	case TierAC:
		return "assessment_criteria"
	case TierLO:
		return "learning_outcomes"
	default:
		return "report_outcomes"
	}
}

func (t Tier) scoreTable() string {
	switch t {
	case TierAC:
		return "ac_scores"
	case TierLO:
		return "lo_scores"
	default:
		return "ro_scores"
	}
}

// idColumn is the node id column in score and mapping tables.
func (t Tier) idColumn() string {
	switch t {
	case TierAC:
		return "ac_id"
	case TierLO:
		return "lo_id"
	default:
		return "ro_id"
	}
}

// Scope identifies a class context. Section is optional; an empty section
// on a node means the node applies to the whole class.
type Scope struct {
	Subject string `json:"subject"`
	Year    string `json:"year"`
	Quarter string `json:"quarter"`
	Class   string `json:"class"`
	Section string `json:"section,omitempty"`
}

func (s Scope) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(s.Year) == "" {
		missing = append(missing, "year")
	}
	if strings.TrimSpace(s.Quarter) == "" {
		missing = append(missing, "quarter")
	}
	if strings.TrimSpace(s.Class) == "" {
		missing = append(missing, "classname")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required scope fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SameClass reports whether both scopes belong to one subject, year and class.
func (s Scope) SameClass(o Scope) bool {
	return s.Subject == o.Subject && s.Year == o.Year && s.Class == o.Class
}

// Key is a stable string form of the scope, used for cache keys.
func (s Scope) Key() string {
	return strings.Join([]string{s.Subject, s.Year, s.Quarter, s.Class, s.Section}, "|")
}

// Node is an AC, LO or RO. MaxMarks is only meaningful for ACs.
type Node struct {
	ID        int64   `json:"id"`
	Tier      Tier    `json:"tier"`
	Name      string  `json:"name"`
	Scope     Scope   `json:"scope"`
	MaxMarks  float64 `json:"max_marks,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// EdgeKind is one of the two allowed mapping directions. There is no kind
// linking AC directly to RO, so the hierarchy cannot form a cycle.
type EdgeKind int

const (
	ACToLO EdgeKind = iota + 1
	LOToRO
)

func (k EdgeKind) String() string {
	switch k {
	case ACToLO:
		return "ac->lo"
	case LOToRO:
		return "lo->ro"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

func (k EdgeKind) Source() Tier {
	if k == LOToRO {
		return TierLO
	}
	return TierAC
}

func (k EdgeKind) Target() Tier {
	if k == LOToRO {
		return TierRO
	}
	return TierLO
}

func (k EdgeKind) table() string {
	if k == LOToRO {
		return "ro_lo_mapping"
	}
	return "lo_ac_mapping"
}

// KindInto returns the edge kind whose targets are of tier t.
func KindInto(t Tier) (EdgeKind, bool) {
	switch t {
	case TierLO:
		return ACToLO, true
	case TierRO:
		return LOToRO, true
	default:
		return 0, false
	}
}

// Edge is a mapping edge. Weight is nil until computed and stays nil for
// edges without a priority.
type Edge struct {
	Kind     EdgeKind           `json:"-"`
	SourceID int64              `json:"source_id"`
	TargetID int64              `json:"target_id"`
	Priority weighting.Priority `json:"priority"`
	Weight   *float64           `json:"weight"`
}

// Score is a per student value in [0,1]. Obtained holds the raw marks for
// AC scores and is nil on derived tiers.
type Score struct {
	StudentID int64    `json:"student_id"`
	NodeID    int64    `json:"node_id"`
	Value     float64  `json:"value"`
	Obtained  *float64 `json:"obtained_marks,omitempty"`
}

type Student struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	RollNo string        `json:"roll_no"`
	Status StudentStatus `json:"status"`
}

// StudentStatus marks whether a student still takes part in score entry.
type StudentStatus string

const (
	StudentActive   StudentStatus = "active"
	StudentInactive StudentStatus = "inactive"
)

func ParseStudentStatus(s string) (StudentStatus, error) {
	switch st := StudentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StudentActive, StudentInactive:
		return st, nil
	}
	return "", apperr.Validation("status must be active or inactive, got %q", s)
}

type Enrollment struct {
	StudentID int64  `json:"student_id"`
	Year      string `json:"year"`
	Class     string `json:"class"`
	Section   string `json:"section"`
}

// NodeFilter narrows ListNodes. Empty fields are ignored. When Section is
// set, nodes without a section still match.
type NodeFilter struct {
	Subject  string
	Year     string
	Quarters []string
	Class    string
	Section  string
}

// FilterFor builds the filter matching exactly one scope.
func FilterFor(s Scope) NodeFilter {
	f := NodeFilter{Subject: s.Subject, Year: s.Year, Class: s.Class, Section: s.Section}
	if s.Quarter != "" {
		f.Quarters = []string{s.Quarter}
	}
	return f
}
