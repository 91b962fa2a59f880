package achievement

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeJSON parses raw model output and normalizes it into a Result.
// Malformed or truncated JSON is treated as an empty object.
func NormalizeJSON(data []byte) Result {
	return Normalize(decodeLoose(data))
}

// Normalize coerces any decoded JSON value into a Result that satisfies
// every field cap and default. Values that are not objects become {}.
func Normalize(raw any) Result {
	obj, _ := raw.(map[string]any)

	period := PeriodDay
	if s, ok := obj["period"].(string); ok && Period(s).Valid() {
		period = Period(s)
	}

	label := trimString(stringField(obj, "periodLabel"), MaxPeriodLabelChars)
	if label == "" {
		label = DefaultPeriodLabel
	}

	return Result{
		Period:       period,
		PeriodLabel:  label,
		Achievements: normalizeAchievements(obj["achievements"]),
		DJComment:    trimString(stringField(obj, "djComment"), MaxDJCommentChars),
		DJTrivia:     trimString(stringField(obj, "djTrivia"), MaxDJTriviaChars),
	}
}

// Normalize re-applies the normalization rules to a typed Result.
// It is the identity on any Result produced by Normalize or NormalizeJSON.
func (r Result) Normalize() Result {
	period := r.Period
	if !period.Valid() {
		period = PeriodDay
	}

	label := trimString(r.PeriodLabel, MaxPeriodLabelChars)
	if label == "" {
		label = DefaultPeriodLabel
	}

	var achievements []Achievement
	if len(r.Achievements) == 0 {
		achievements = []Achievement{DefaultAchievement()}
	} else {
		items := r.Achievements
		if len(items) > MaxAchievements {
			items = items[:MaxAchievements]
		}
		achievements = make([]Achievement, 0, len(items))
		for _, a := range items {
			achievements = append(achievements, normalizeAchievement(a.Content, a.Value, a.Unit, a.Frequency))
		}
	}

	return Result{
		Period:       period,
		PeriodLabel:  label,
		Achievements: achievements,
		DJComment:    trimString(r.DJComment, MaxDJCommentChars),
		DJTrivia:     trimString(r.DJTrivia, MaxDJTriviaChars),
	}
}

func normalizeAchievements(raw any) []Achievement {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return []Achievement{DefaultAchievement()}
	}
	if len(items) > MaxAchievements {
		items = items[:MaxAchievements]
	}

	out := make([]Achievement, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]any)
		out = append(out, normalizeAchievement(
			stringField(obj, "content"),
			obj["value"],
			stringField(obj, "unit"),
			stringField(obj, "frequency"),
		))
	}
	return out
}

func normalizeAchievement(content string, value any, unit, frequency string) Achievement {
	content = trimString(content, MaxContentChars)
	if content == "" {
		content = DefaultContent
	}
	return Achievement{
		Content:   content,
		Value:     safeNumber(value),
		Unit:      trimString(unit, MaxUnitChars),
		Frequency: trimString(frequency, MaxFrequencyChars),
	}
}

// safeNumber returns v clamped to [MinValue, MaxValue]. Anything that is not
// a finite number becomes DefaultValue.
func safeNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return DefaultValue
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return DefaultValue
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return DefaultValue
	}
	return math.Max(MinValue, math.Min(f, MaxValue))
}

// trimString trims whitespace and caps s at max runes. The result is
// trimmed again after the cut so that applying it twice changes nothing.
func trimString(s string, max int) string {
	s = strings.TrimSpace(strings.ToValidUTF8(s, "�"))
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace)
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// decodeLoose decodes exactly one JSON value, keeping numbers as json.Number.
// Trailing data or syntax errors yield nil.
func decodeLoose(data []byte) any {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil
	}
	return v
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
