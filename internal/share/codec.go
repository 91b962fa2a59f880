// Package share encodes Results into URL-fragment tokens and back.
//
// Tokens are self-contained: a recipient decodes them locally with no
// server round trip. Two wire formats exist. Links created before
// compression was introduced carry no tag and must stay readable.
package share

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/hpungsan/miroyo/internal/achievement"
	"github.com/hpungsan/miroyo/internal/errors"
)

const (
	// MaxShareBytes is the largest canonical JSON payload that may be shared.
	MaxShareBytes = 2800
	// MaxTokenLength is the longest token Decode will look at.
	MaxTokenLength = 4096
	// ResultPath is the page that renders a shared token from its fragment.
	ResultPath = "/result"
)

// Marshal returns the canonical JSON encoding of r: no HTML escaping and
// no trailing newline.
func Marshal(r achievement.Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Encode serializes r into a token in CurrentFormat.
// It fails with ErrShareTooLarge instead of truncating; callers must
// shorten the content before sharing.
func Encode(r achievement.Result) (string, error) {
	return EncodeFormat(r, CurrentFormat)
}

// EncodeFormat serializes r into a token in the given format.
func EncodeFormat(r achievement.Result, f Format) (string, error) {
	wf, ok := formats[f]
	if !ok {
		return "", errors.NewInternal(fmt.Errorf("unknown share format %d", int(f)))
	}

	data, err := Marshal(r)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if len(data) > MaxShareBytes {
		return "", errors.NewShareTooLarge(MaxShareBytes, len(data))
	}

	payload, err := wf.encode(data)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return wf.tag + payload, nil
}

// Decode reconstructs a Result from a token. Every failure is an
// ErrInvalidShare error; callers should fall back to an empty state.
// The decoded value is normalized, which leaves any Result that came out
// of the pipeline unchanged.
func Decode(token string) (achievement.Result, error) {
	if token == "" {
		return achievement.Result{}, errors.NewInvalidShare(fmt.Errorf("empty token"))
	}
	if len(token) > MaxTokenLength {
		return achievement.Result{}, errors.NewInvalidShare(
			fmt.Errorf("token is %d chars (max %d)", len(token), MaxTokenLength))
	}

	wf := formats[Detect(token)]
	data, err := wf.decode(strings.TrimPrefix(token, wf.tag))
	if err != nil {
		return achievement.Result{}, errors.NewInvalidShare(fmt.Errorf("%s: %w", wf.name, err))
	}

	raw, err := parseObject(data)
	if err != nil {
		return achievement.Result{}, errors.NewInvalidShare(fmt.Errorf("%s: %w", wf.name, err))
	}
	return achievement.Normalize(raw), nil
}

// parseObject decodes data as a single JSON object, keeping numbers exact.
func parseObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("parse json: not an object")
	}
	if dec.More() {
		return nil, fmt.Errorf("parse json: trailing data")
	}
	return obj, nil
}

// URL builds the shareable link for token under baseURL.
func URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + ResultPath + "#" + token
}

// TokenFromURL extracts the token from a share link. Input without a
// fragment is returned as-is, so bare tokens pass through.
func TokenFromURL(s string) string {
	s = strings.TrimSpace(s)
	idx := strings.IndexByte(s, '#')
	if idx < 0 {
		return s
	}
	fragment := s[idx+1:]
	if unescaped, err := url.PathUnescape(fragment); err == nil {
		return unescaped
	}
	return fragment
}
