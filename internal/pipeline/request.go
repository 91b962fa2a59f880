package pipeline

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/hpungsan/miroyo/internal/errors"
)

// invalidOrigin reports a present Origin header that is not this host
// over http or https. A request with an Origin but no Host is invalid.
func invalidOrigin(req Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return false
	}
	if req.Host == "" {
		return true
	}
	return origin != "https://"+req.Host && origin != "http://"+req.Host
}

// crossSite reports a Sec-Fetch-Site header other than same-origin or none.
func crossSite(h http.Header) bool {
	site := h.Get("Sec-Fetch-Site")
	if site == "" {
		return false
	}
	return site != "same-origin" && site != "none"
}

// ClientIdentity returns the rate-limit key for a request: the first
// X-Forwarded-For entry, else X-Real-IP, else UnknownIdentity. Both
// headers are client-controlled unless a proxy overwrites them.
func ClientIdentity(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(h.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownIdentity
}

// readText reads a JSON object body and returns its trimmed "text" field.
func readText(body io.Reader) (string, error) {
	if body == nil {
		return "", errors.NewBadRequest("missing body")
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxBodyBytes+1))
	if err != nil {
		return "", errors.NewBadRequest("failed to read body")
	}
	if len(data) > MaxBodyBytes {
		return "", errors.NewBadRequest("body too large")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return "", errors.NewBadRequest("body is not a JSON object")
	}
	if dec.More() {
		return "", errors.NewBadRequest("trailing data after body")
	}

	text, ok := obj["text"].(string)
	if !ok {
		return "", errors.NewBadRequest("text must be a string")
	}
	return strings.TrimSpace(text), nil
}
