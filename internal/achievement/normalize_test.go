package achievement

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"
)

func defaultResult() Result {
	return Result{
		Period:       PeriodDay,
		PeriodLabel:  DefaultPeriodLabel,
		Achievements: []Achievement{DefaultAchievement()},
	}
}

func TestNormalizeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Result
	}{
		{
			name:  "empty object",
			input: `{}`,
			want:  defaultResult(),
		},
		{
			name:  "malformed json",
			input: `{"period": "week", "achievements": [`,
			want:  defaultResult(),
		},
		{
			name:  "empty input",
			input: ``,
			want:  defaultResult(),
		},
		{
			name:  "trailing garbage",
			input: `{"period": "week"} {"period": "month"}`,
			want:  defaultResult(),
		},
		{
			name:  "top-level array",
			input: `[{"period": "week"}]`,
			want:  defaultResult(),
		},
		{
			name:  "wrong-typed period",
			input: `{"period": 7}`,
			want:  defaultResult(),
		},
		{
			name:  "unknown period",
			input: `{"period": "year"}`,
			want:  defaultResult(),
		},
		{
			name: "jogging example",
			input: `{"period":"day","periodLabel":"今日","achievements":[` +
				`{"content":"ジョギング","value":5,"unit":"km","frequency":""}],` +
				`"djComment":"Yo!","djTrivia":"5kmは東京タワー15本分だぜ！"}`,
			want: Result{
				Period:      PeriodDay,
				PeriodLabel: "今日",
				Achievements: []Achievement{
					{Content: "ジョギング", Value: 5, Unit: "km", Frequency: ""},
				},
				DJComment: "Yo!",
				DJTrivia:  "5kmは東京タワー15本分だぜ！",
			},
		},
		{
			name:  "empty achievements array",
			input: `{"period":"month","periodLabel":"1ヶ月","achievements":[]}`,
			want: Result{
				Period:       PeriodMonth,
				PeriodLabel:  "1ヶ月",
				Achievements: []Achievement{DefaultAchievement()},
			},
		},
		{
			name:  "achievement fields missing",
			input: `{"achievements":[{}, null, "x"]}`,
			want: Result{
				Period:      PeriodDay,
				PeriodLabel: DefaultPeriodLabel,
				Achievements: []Achievement{
					{Content: DefaultContent, Value: 1},
					{Content: DefaultContent, Value: 1},
					{Content: DefaultContent, Value: 1},
				},
			},
		},
		{
			name: "value coercion",
			input: `{"achievements":[` +
				`{"content":"a","value":-3},` +
				`{"content":"b","value":2000000},` +
				`{"content":"c","value":"5"},` +
				`{"content":"d","value":1e400},` +
				`{"content":"e","value":12.5}]}`,
			want: Result{
				Period:      PeriodDay,
				PeriodLabel: DefaultPeriodLabel,
				Achievements: []Achievement{
					{Content: "a", Value: 0},
					{Content: "b", Value: 1_000_000},
					{Content: "c", Value: 1},
					{Content: "d", Value: 1},
					{Content: "e", Value: 12.5},
				},
			},
		},
		{
			name:  "whitespace-only strings",
			input: `{"periodLabel":"   ","achievements":[{"content":"  ","unit":" kg "}]}`,
			want: Result{
				Period:       PeriodDay,
				PeriodLabel:  DefaultPeriodLabel,
				Achievements: []Achievement{{Content: DefaultContent, Value: 1, Unit: "kg"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeJSON([]byte(tt.input))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeJSON(%s)\n got = %+v\nwant = %+v", tt.input, got, tt.want)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestNormalizeJSON_TruncatesAchievements(t *testing.T) {
	items := make([]map[string]any, 8)
	for i := range items {
		items[i] = map[string]any{"content": strings.Repeat("x", i+1), "value": i}
	}
	data, _ := json.Marshal(map[string]any{"achievements": items})

	got := NormalizeJSON(data)
	if len(got.Achievements) != MaxAchievements {
		t.Fatalf("len(Achievements) = %d, want %d", len(got.Achievements), MaxAchievements)
	}
	if got.Achievements[4].Content != "xxxxx" {
		t.Errorf("Achievements[4].Content = %q, want %q", got.Achievements[4].Content, "xxxxx")
	}
}

func TestNormalizeJSON_CapsStrings(t *testing.T) {
	long := func(n int) string { return strings.Repeat("あ", n) }
	data, _ := json.Marshal(map[string]any{
		"periodLabel": long(100),
		"djComment":   long(500),
		"djTrivia":    long(500),
		"achievements": []map[string]any{{
			"content":   long(100),
			"unit":      long(100),
			"frequency": long(100),
			"value":     3,
		}},
	})

	got := NormalizeJSON(data)

	checks := []struct {
		field string
		value string
		max   int
	}{
		{"periodLabel", got.PeriodLabel, MaxPeriodLabelChars},
		{"djComment", got.DJComment, MaxDJCommentChars},
		{"djTrivia", got.DJTrivia, MaxDJTriviaChars},
		{"content", got.Achievements[0].Content, MaxContentChars},
		{"unit", got.Achievements[0].Unit, MaxUnitChars},
		{"frequency", got.Achievements[0].Frequency, MaxFrequencyChars},
	}
	for _, c := range checks {
		if n := CountChars(c.value); n != c.max {
			t.Errorf("%s has %d chars, want %d", c.field, n, c.max)
		}
	}
}

func TestTrimString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"short", "abc", 5, "abc"},
		{"trims", "  abc  ", 5, "abc"},
		{"cuts runes not bytes", "ジョギング大会", 4, "ジョギン"},
		{"right-trims after cut", "abc   def", 5, "abc"},
		{"empty", "", 5, ""},
		{"invalid utf8", "a\xffb", 5, "a�b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trimString(tt.input, tt.max); got != tt.want {
				t.Errorf("trimString(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}

func TestSafeNumber(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
	}{
		{"json number", json.Number("42"), 42},
		{"float", 3.5, 3.5},
		{"int", 7, 7},
		{"negative", -1.0, 0},
		{"too big", 5e6, MaxValue},
		{"nan", math.NaN(), 1},
		{"inf", math.Inf(1), 1},
		{"string", "12", 1},
		{"bool", true, 1},
		{"nil", nil, 1},
		{"bad json number", json.Number("1e999"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := safeNumber(tt.input); got != tt.want {
				t.Errorf("safeNumber(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		`{}`,
		`not json`,
		`{"period":"week","periodLabel":"  1週間  ","achievements":[{"content":"読書","value":3,"unit":"冊","frequency":"毎日"}],"djComment":"  Yeah  "}`,
		`{"periodLabel":"` + strings.Repeat("long label ", 10) + `"}`,
		`{"achievements":[{"content":"` + strings.Repeat("a b ", 40) + `","value":1e7}]}`,
	}

	for _, in := range inputs {
		first := NormalizeJSON([]byte(in))
		second := first.Normalize()
		if !reflect.DeepEqual(first, second) {
			t.Errorf("typed Normalize not idempotent for %s\nfirst  = %+v\nsecond = %+v", in, first, second)
		}

		data, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		third := NormalizeJSON(data)
		if !reflect.DeepEqual(first, third) {
			t.Errorf("NormalizeJSON not idempotent for %s\nfirst = %+v\nthird = %+v", in, first, third)
		}
	}
}

func TestResultNormalize_FixesTypedResult(t *testing.T) {
	r := Result{
		Period:       "fortnight",
		Achievements: []Achievement{{Content: " run ", Value: math.Inf(-1)}},
	}

	got := r.Normalize()
	want := Result{
		Period:       PeriodDay,
		PeriodLabel:  DefaultPeriodLabel,
		Achievements: []Achievement{{Content: "run", Value: 1}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	valid := defaultResult()
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate(default) = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(r *Result)
	}{
		{"bad period", func(r *Result) { r.Period = "year" }},
		{"empty label", func(r *Result) { r.PeriodLabel = "" }},
		{"no achievements", func(r *Result) { r.Achievements = nil }},
		{"too many achievements", func(r *Result) {
			r.Achievements = make([]Achievement, 6)
			for i := range r.Achievements {
				r.Achievements[i] = DefaultAchievement()
			}
		}},
		{"value out of range", func(r *Result) { r.Achievements[0].Value = -1 }},
		{"untrimmed comment", func(r *Result) { r.DJComment = " hi" }},
		{"trivia too long", func(r *Result) { r.DJTrivia = strings.Repeat("x", MaxDJTriviaChars+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := defaultResult()
			tt.mutate(&r)
			if err := r.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
