// Package httpvalidate supplies the concrete spec.Validator implementations
// a TestSpec's Validators field is built from: body-contains, regex, and
// gjson-based JSON path checks. The regex pattern is compiled once, at
// config load time (NewRegex), never per request.
package httpvalidate

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

// Contains reports whether the response body contains Value as a
// substring.
type Contains struct {
	Value string
}

func (c Contains) Validate(resp *spec.Response, _ spec.Context) bool {
	return bytes.Contains(resp.Body, []byte(c.Value))
}

// Regex reports whether the response body matches a pre-compiled pattern.
type Regex struct {
	pattern *regexp.Regexp
}

// NewRegex compiles pattern once; construction failures are surfaced here
// rather than deferred to the first request.
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Regex{pattern: re}, nil
}

func (r *Regex) Validate(resp *spec.Response, _ spec.Context) bool {
	return r.pattern.Match(resp.Body)
}

// JSONPath checks a gjson path exists and, if Value is non-empty,
// compares the extracted value's string form against Value. gjson reads
// directly off the response bytes without a full unmarshal.
type JSONPath struct {
	Path  string
	Value string
}

func (j JSONPath) Validate(resp *spec.Response, _ spec.Context) bool {
	result := gjson.GetBytes(resp.Body, j.Path)
	if !result.Exists() {
		return false
	}
	if j.Value == "" {
		return true
	}
	return strings.TrimSpace(result.String()) == strings.TrimSpace(j.Value)
}
