// Package negotiate decides how a backend response body is decoded and
// extracts a display string from the JSON shapes the backend is known to emit.
package negotiate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

// ErrDecode is returned when a non-image body is not valid JSON.
var ErrDecode = errors.New("decode response body")

// IsImage reports whether a Content-Type header value names an image.
func IsImage(contentType string) bool {
	return len(contentType) >= len("image/") &&
		strings.EqualFold(contentType[:len("image/")], "image/")
}

// Negotiator classifies backend responses using an ordered list of
// extraction rules.
type Negotiator struct {
	rules []Rule
}

// New creates a Negotiator. With no rules it uses DefaultRules.
func New(rules ...Rule) *Negotiator {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Negotiator{rules: rules}
}

// Classify turns a raw backend response into a relay.Response. Bodies whose
// Content-Type starts with image/ are returned as-is with the header value as
// the media type; anything else is decoded as JSON.
func (n *Negotiator) Classify(header http.Header, body []byte) (relay.Response, error) {
	contentType := header.Get("Content-Type")
	if IsImage(contentType) {
		return relay.Image(contentType, body), nil
	}

	text, err := n.Extract(body)
	if err != nil {
		return relay.Response{}, err
	}
	return relay.Text(text), nil
}

// Extract returns the display string for a JSON body: the first rule that
// matches wins, and the compact payload itself is the fallback.
func (n *Negotiator) Extract(body []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		if !json.Valid(body) {
			return "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		// Well-formed but not an object: only the fallback applies.
		return compact(body), nil
	}
	if fields == nil {
		// A bare null has no fields to read.
		return "", fmt.Errorf("%w: body is null", ErrDecode)
	}

	for _, rule := range n.rules {
		if text, ok := rule.Extract(fields); ok {
			return text, nil
		}
	}
	return compact(body), nil
}

// Classify uses the default rule set.
func Classify(header http.Header, body []byte) (relay.Response, error) {
	return defaultNegotiator.Classify(header, body)
}

// Extract uses the default rule set.
func Extract(body []byte) (string, error) {
	return defaultNegotiator.Extract(body)
}

var defaultNegotiator = New()

func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
