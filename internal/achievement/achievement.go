package achievement

import (
	"fmt"
	"math"
)

// Period is the time span an extraction covers.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// Field caps, counted in characters (runes).
const (
	MaxContentChars     = 60
	MaxUnitChars        = 20
	MaxFrequencyChars   = 30
	MaxPeriodLabelChars = 40
	MaxDJCommentChars   = 300
	MaxDJTriviaChars    = 400
	MaxAchievements     = 5

	MinValue = 0
	MaxValue = 1_000_000
)

// Defaults used when the model omits or garbles a field.
const (
	DefaultContent     = "がんばり"
	DefaultUnit        = "回"
	DefaultValue       = 1
	DefaultPeriodLabel = "今日"
)

// Achievement is one reported accomplishment.
type Achievement struct {
	Content   string  `json:"content"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Frequency string  `json:"frequency"`
}

// Result is the normalized output of one extraction.
// Field order is the canonical JSON order used by the share codec.
type Result struct {
	Period       Period        `json:"period"`
	PeriodLabel  string        `json:"periodLabel"`
	Achievements []Achievement `json:"achievements"`
	DJComment    string        `json:"djComment"`
	DJTrivia     string        `json:"djTrivia"`
}

// DefaultAchievement is synthesized when the model returns no achievements.
func DefaultAchievement() Achievement {
	return Achievement{
		Content: DefaultContent,
		Value:   DefaultValue,
		Unit:    DefaultUnit,
	}
}

// Validate reports the first invariant r violates, or nil if r is
// fully normalized.
func (r Result) Validate() error {
	if !r.Period.Valid() {
		return fmt.Errorf("period %q is not one of day, week, month", r.Period)
	}
	if r.PeriodLabel == "" {
		return fmt.Errorf("periodLabel is empty")
	}
	if err := checkChars("periodLabel", r.PeriodLabel, MaxPeriodLabelChars); err != nil {
		return err
	}
	if n := len(r.Achievements); n < 1 || n > MaxAchievements {
		return fmt.Errorf("achievements has %d entries (want 1..%d)", n, MaxAchievements)
	}
	for i, a := range r.Achievements {
		if a.Content == "" {
			return fmt.Errorf("achievements[%d].content is empty", i)
		}
		if err := checkChars(fmt.Sprintf("achievements[%d].content", i), a.Content, MaxContentChars); err != nil {
			return err
		}
		if math.IsNaN(a.Value) || a.Value < MinValue || a.Value > MaxValue {
			return fmt.Errorf("achievements[%d].value %v out of range", i, a.Value)
		}
		if err := checkChars(fmt.Sprintf("achievements[%d].unit", i), a.Unit, MaxUnitChars); err != nil {
			return err
		}
		if err := checkChars(fmt.Sprintf("achievements[%d].frequency", i), a.Frequency, MaxFrequencyChars); err != nil {
			return err
		}
	}
	if err := checkChars("djComment", r.DJComment, MaxDJCommentChars); err != nil {
		return err
	}
	return checkChars("djTrivia", r.DJTrivia, MaxDJTriviaChars)
}

func checkChars(field, s string, max int) error {
	if s != trimString(s, max) {
		return fmt.Errorf("%s is not trimmed to %d chars", field, max)
	}
	return nil
}
