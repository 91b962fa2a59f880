package share

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Format identifies one share token wire format.
type Format int

const (
	// FormatLegacy is the original un-tagged format: URL-safe base64 of
	// the JSON bytes, no compression.
	FormatLegacy Format = iota
	// FormatDeflate is zlib-compressed JSON, URL-safe base64, tagged "z_".
	FormatDeflate
)

// CurrentFormat is the format Encode produces.
const CurrentFormat = FormatDeflate

// wireFormat describes how a tagged payload is turned back into JSON bytes.
// The legacy format has an empty tag and is the fallback in Detect.
type wireFormat struct {
	name   string
	tag    string
	encode func(data []byte) (string, error)
	decode func(payload string) ([]byte, error)
}

// formats is the registry of known wire formats. Adding a format means
// adding an entry here with a unique tag.
var formats = map[Format]wireFormat{
	FormatLegacy: {
		name:   "legacy",
		tag:    "",
		encode: encodeLegacy,
		decode: decodeLegacy,
	},
	FormatDeflate: {
		name:   "deflate",
		tag:    "z_",
		encode: encodeDeflate,
		decode: decodeDeflate,
	},
}

// String returns the format's name.
func (f Format) String() string {
	if wf, ok := formats[f]; ok {
		return wf.name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Tag returns the literal prefix that marks tokens of this format.
func (f Format) Tag() string {
	return formats[f].tag
}

// Detect returns the format a token is written in. Tokens that carry no
// known tag are legacy tokens.
// When tags share a prefix the longest match wins.
func Detect(token string) Format {
	detected, longest := FormatLegacy, 0
	for f, wf := range formats {
		if len(wf.tag) > longest && strings.HasPrefix(token, wf.tag) {
			detected, longest = f, len(wf.tag)
		}
	}
	return detected
}

// encodeLegacy is kept so tests and tools can produce links in the old
// format; Encode never uses it.
func encodeLegacy(data []byte) (string, error) {
	return toURLSafe(base64.StdEncoding.EncodeToString(data)), nil
}

func decodeLegacy(payload string) ([]byte, error) {
	data, err := fromURLSafe(payload)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxShareBytes {
		return nil, fmt.Errorf("legacy payload is %d bytes (max %d)", len(data), MaxShareBytes)
	}
	return data, nil
}

func encodeDeflate(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	return toURLSafe(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

func decodeDeflate(payload string) ([]byte, error) {
	compressed, err := fromURLSafe(payload)
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()

	// Encode never emits more than MaxShareBytes, so anything larger is
	// rejected without inflating the rest.
	data, err := io.ReadAll(io.LimitReader(zr, MaxShareBytes+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(data) > MaxShareBytes {
		return nil, fmt.Errorf("inflated payload exceeds %d bytes", MaxShareBytes)
	}
	return data, nil
}

// toURLSafe maps standard base64 to the URL-fragment alphabet and drops padding.
func toURLSafe(s string) string {
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return strings.TrimRight(s, "=")
}

// fromURLSafe reverses toURLSafe: restores the standard alphabet, pads to a
// multiple of four and decodes.
func fromURLSafe(s string) ([]byte, error) {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if rest := len(s) % 4; rest != 0 {
		s += strings.Repeat("=", 4-rest)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return data, nil
}
