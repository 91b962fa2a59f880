package share

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/miroyo/internal/achievement"
	"github.com/hpungsan/miroyo/internal/errors"
)

func joggingResult() achievement.Result {
	return achievement.Result{
		Period:      achievement.PeriodDay,
		PeriodLabel: "今日",
		Achievements: []achievement.Achievement{
			{Content: "ジョギング", Value: 5, Unit: "km", Frequency: ""},
		},
		DJComment: "Yo! 5kmも走ったなんてマジでDope!",
		DJTrivia:  "5kmって東京タワー15本分の距離だぜ！",
	}
}

func fullResult() achievement.Result {
	r := achievement.Result{
		Period:      achievement.PeriodWeek,
		PeriodLabel: "1週間",
		DJComment:   strings.Repeat("Yeah! ", 40),
		DJTrivia:    strings.Repeat("トリビア", 90),
	}
	for i := 0; i < achievement.MaxAchievements; i++ {
		r.Achievements = append(r.Achievements, achievement.Achievement{
			Content:   "読書 & <勉強>",
			Value:     float64(i) + 0.25,
			Unit:      "冊",
			Frequency: "毎日",
		})
	}
	return r.Normalize()
}

// legacyToken produces a token the way links were built before compression.
func legacyToken(t *testing.T, data []byte) string {
	t.Helper()
	s := base64.StdEncoding.EncodeToString(data)
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return strings.TrimRight(s, "=")
}

func deflateToken(t *testing.T, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return "z_" + base64.RawURLEncoding.EncodeToString(buf.Bytes())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, r := range []achievement.Result{joggingResult(), fullResult()} {
		token, err := Encode(r)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(token, "z_"))

		got, err := Decode(token)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestEncode_TokenIsFragmentSafe(t *testing.T) {
	token, err := Encode(fullResult())
	require.NoError(t, err)

	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}

func TestEncode_CompressesRepetitiveText(t *testing.T) {
	r := fullResult()
	data, err := Marshal(r)
	require.NoError(t, err)

	token, err := Encode(r)
	require.NoError(t, err)
	assert.Less(t, len(token), len(legacyToken(t, data)))
}

func TestEncode_TooLarge(t *testing.T) {
	r := fullResult()
	// Bypass normalization caps to build an oversized payload.
	r.DJTrivia = strings.Repeat("あ", 1000)

	token, err := Encode(r)
	require.Error(t, err)
	assert.Empty(t, token)
	assert.True(t, errors.Is(err, errors.ErrShareTooLarge))
}

func TestEncode_BoundaryIsInclusive(t *testing.T) {
	r := joggingResult()
	data, err := Marshal(r)
	require.NoError(t, err)

	// Pad the comment with ASCII so the payload lands exactly on the ceiling.
	r.DJComment += strings.Repeat("x", MaxShareBytes-len(data))
	data, err = Marshal(r)
	require.NoError(t, err)
	require.Len(t, data, MaxShareBytes)

	_, err = Encode(r)
	require.NoError(t, err)

	r.DJComment += "x"
	_, err = Encode(r)
	assert.True(t, errors.Is(err, errors.ErrShareTooLarge))
}

func TestMarshal_Canonical(t *testing.T) {
	data, err := Marshal(achievement.Result{
		Period:       achievement.PeriodDay,
		PeriodLabel:  "a<b>&c",
		Achievements: []achievement.Achievement{{Content: "x", Value: 1000000}},
	})
	require.NoError(t, err)

	want := `{"period":"day","periodLabel":"a<b>&c","achievements":[{"content":"x","value":1000000,"unit":"","frequency":""}],"djComment":"","djTrivia":""}`
	assert.Equal(t, want, string(data))
}

func TestDecode_Legacy(t *testing.T) {
	r := joggingResult()
	data, err := Marshal(r)
	require.NoError(t, err)

	got, err := Decode(legacyToken(t, data))
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestDecode_LegacyFromEncodeFormat(t *testing.T) {
	token, err := EncodeFormat(joggingResult(), FormatLegacy)
	require.NoError(t, err)
	assert.Equal(t, FormatLegacy, Detect(token))

	got, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, joggingResult(), got)
}

func TestDecode_LegacyTooLarge(t *testing.T) {
	data := []byte(`{"djComment":"` + strings.Repeat("x", MaxShareBytes) + `"}`)
	token := legacyToken(t, data)
	require.LessOrEqual(t, len(token), MaxTokenLength)

	_, err := Decode(token)
	assert.True(t, errors.Is(err, errors.ErrInvalidShare))
}

func TestDecode_DeflateTooLarge(t *testing.T) {
	data := []byte(`{"djComment":"` + strings.Repeat("x", 50000) + `"}`)
	token := deflateToken(t, data)
	require.LessOrEqual(t, len(token), MaxTokenLength)

	_, err := Decode(token)
	assert.True(t, errors.Is(err, errors.ErrInvalidShare))
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("a", MaxTokenLength+1)},
		{"bad base64 legacy", "!!!not-base64!!!"},
		{"bad base64 deflate", "z_!!!"},
		{"one dangling char", "z_a"},
		{"not zlib", "z_" + base64.RawURLEncoding.EncodeToString([]byte("plain text, not deflate"))},
		{"truncated zlib", deflateToken(t, []byte(`{"period":"day"}`))[:12]},
		{"legacy not json", base64.RawURLEncoding.EncodeToString([]byte("hello"))},
		{"legacy json array", base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`))},
		{"legacy json null", base64.RawURLEncoding.EncodeToString([]byte(`null`))},
		{"deflate trailing data", deflateToken(t, []byte(`{} {}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidShare), "got %v", err)
			assert.Equal(t, achievement.Result{}, got)
		})
	}
}

func TestDecode_MaxLengthAccepted(t *testing.T) {
	// A token of exactly MaxTokenLength passes the length guard and fails
	// later only because its content is garbage.
	_, err := Decode("z_" + strings.Repeat("A", MaxTokenLength-2))
	require.Error(t, err)

	var mErr *errors.MiroyoError
	require.ErrorAs(t, err, &mErr)
	assert.NotContains(t, mErr.Err.Error(), "max")
}

func TestDecode_NormalizesForeignPayload(t *testing.T) {
	token := deflateToken(t, []byte(`{"period":"year","achievements":[{"content":"  走る  ","value":-5}]}`))

	got, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, achievement.PeriodDay, got.Period)
	assert.Equal(t, "走る", got.Achievements[0].Content)
	assert.Equal(t, float64(0), got.Achievements[0].Value)
	assert.NoError(t, got.Validate())
}

func TestDecode_AcceptsPaddedLegacy(t *testing.T) {
	data, err := Marshal(joggingResult())
	require.NoError(t, err)

	padded := base64.URLEncoding.EncodeToString(data)
	got, err := Decode(padded)
	require.NoError(t, err)
	assert.Equal(t, joggingResult(), got)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, FormatDeflate, Detect("z_abc"))
	assert.Equal(t, FormatLegacy, Detect("eyJwZXJpb2QiOiJkYXkifQ"))
	assert.Equal(t, FormatLegacy, Detect("z"))
	assert.Equal(t, "deflate", FormatDeflate.String())
	assert.Equal(t, "z_", FormatDeflate.Tag())
	assert.Equal(t, "", FormatLegacy.Tag())
}

func TestURLAndTokenFromURL(t *testing.T) {
	token, err := Encode(joggingResult())
	require.NoError(t, err)

	link := URL("https://miroyo.example/", token)
	assert.Equal(t, "https://miroyo.example/result#"+token, link)
	assert.Equal(t, token, TokenFromURL(link))
	assert.Equal(t, token, TokenFromURL("  "+token+"\n"))

	got, err := Decode(TokenFromURL(link))
	require.NoError(t, err)
	assert.Equal(t, joggingResult(), got)
}
