package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a single validation error with context and suggestions.
type ValidationError struct {
	Field      string // Field path (e.g., "performance.mode")
	Value      string // The actual value provided (if any)
	Message    string // Error description
	Expected   string // Expected format/type
	Hint       string // Helpful suggestion
	DidYouMean string // Typo correction suggestion
}

// ValidationResult holds all validation errors.
type ValidationResult struct {
	Errors []ValidationError
}

// Add adds a new validation error.
func (v *ValidationResult) Add(err ValidationError) {
	v.Errors = append(v.Errors, err)
}

// HasErrors returns true if there are validation errors.
func (v *ValidationResult) HasErrors() bool {
	return len(v.Errors) > 0
}

// FormatErrors formats all errors into a user-friendly string.
func (v *ValidationResult) FormatErrors() string {
	if !v.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n❌ Configuration Errors:\n")

	for i, err := range v.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %s\n", i+1, err.Field))

		if err.Value != "" {
			sb.WriteString(fmt.Sprintf("     ├─ Value: %q\n", truncate(err.Value, 50)))
		}

		sb.WriteString(fmt.Sprintf("     ├─ Error: %s\n", err.Message))

		if err.Expected != "" {
			sb.WriteString(fmt.Sprintf("     ├─ Expected: %s\n", err.Expected))
		}

		if err.DidYouMean != "" {
			sb.WriteString(fmt.Sprintf("     ├─ Did you mean: %q?\n", err.DidYouMean))
		}

		if err.Hint != "" {
			sb.WriteString(fmt.Sprintf("     └─ 💡 Hint: %s\n", err.Hint))
		}
	}

	return sb.String()
}

// Known valid field values, used for typo detection against what a suite
// author actually wrote.
var (
	validValidatorTypes = []string{"contains", "regex", "json_path"}
	validDispatchModes  = []string{"parallel-workers", "cooperative-async"}
	validRPSModes       = []string{"wall", "response"}
	validTransportErrors = []string{
		"connect_timeout", "read_timeout", "connection_refused",
		"connection_reset", "dns_failure", "tls_error", "other",
	}
)

var fieldHints = map[string]string{
	"target.url":          "Provide the full URL including protocol (e.g., https://api.example.com/v1/users)",
	"target.timeout":      "Per-attempt timeout with unit (e.g., '10s', '30s', '1m')",
	"validators[].type":   "One of: contains, regex, json_path",
	"performance.mode":    "One of: parallel-workers, cooperative-async",
	"performance.rps_mode": "One of: wall, response",
	"retry.retry_errors":  "Transport error kinds: connect_timeout, read_timeout, connection_refused, connection_reset, dns_failure, tls_error, other",
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = min3(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// FindClosestMatch finds the closest matching value from validOptions,
// returning "" if nothing is close enough to be a plausible typo.
func FindClosestMatch(input string, validOptions []string) string {
	if input == "" {
		return ""
	}

	bestMatch := ""
	bestDistance := 100

	for _, option := range validOptions {
		distance := levenshteinDistance(input, option)
		if distance < bestDistance && distance <= len(option)/2+1 {
			bestDistance = distance
			bestMatch = option
		}
	}

	if strings.EqualFold(input, bestMatch) {
		return ""
	}

	return bestMatch
}

// GetHint returns a helpful hint for a field.
func GetHint(field string) string {
	return fieldHints[field]
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

// Validate collects every problem in y before Load commits to building a
// Suite from it, so a suite author sees every mistake in one pass instead
// of fixing fields one fmt.Errorf at a time.
func Validate(y YAMLConfig) *ValidationResult {
	result := &ValidationResult{}

	if strings.TrimSpace(y.Target.URL) == "" {
		result.Add(ValidationError{
			Field:   "target.url",
			Message: "must not be empty",
			Hint:    GetHint("target.url"),
		})
	}

	if y.Target.Timeout != "" {
		if _, err := time.ParseDuration(y.Target.Timeout); err != nil {
			result.Add(ValidationError{
				Field:   "target.timeout",
				Value:   y.Target.Timeout,
				Message: err.Error(),
				Hint:    GetHint("target.timeout"),
			})
		}
	}

	for i, v := range y.Validators {
		t := strings.ToLower(v.Type)
		if t != "" && t != "contains" && t != "regex" && t != "json_path" {
			result.Add(ValidationError{
				Field:      fmt.Sprintf("validators[%d].type", i),
				Value:      v.Type,
				Message:    "unknown validator type",
				Expected:   strings.Join(validValidatorTypes, ", "),
				DidYouMean: FindClosestMatch(v.Type, validValidatorTypes),
				Hint:       GetHint("validators[].type"),
			})
			continue
		}
		if t == "regex" {
			if _, err := regexp.Compile(v.Value); err != nil {
				result.Add(ValidationError{
					Field:   fmt.Sprintf("validators[%d].value", i),
					Value:   v.Value,
					Message: fmt.Sprintf("invalid regex: %v", err),
				})
			}
		}
	}

	if y.Performance.Mode != "" {
		m := strings.ToLower(y.Performance.Mode)
		if m != "parallel-workers" && m != "parallel" && m != "cooperative-async" && m != "cooperative" && m != "async" {
			result.Add(ValidationError{
				Field:      "performance.mode",
				Value:      y.Performance.Mode,
				Message:    "unknown dispatch mode",
				Expected:   strings.Join(validDispatchModes, ", "),
				DidYouMean: FindClosestMatch(y.Performance.Mode, validDispatchModes),
				Hint:       GetHint("performance.mode"),
			})
		}
	}

	if y.Performance.RPSMode != "" {
		m := strings.ToLower(y.Performance.RPSMode)
		if m != "wall" && m != "response" {
			result.Add(ValidationError{
				Field:      "performance.rps_mode",
				Value:      y.Performance.RPSMode,
				Message:    "unknown rps_mode",
				Expected:   strings.Join(validRPSModes, ", "),
				DidYouMean: FindClosestMatch(y.Performance.RPSMode, validRPSModes),
				Hint:       GetHint("performance.rps_mode"),
			})
		}
	}

	for _, p := range y.Performance.Percentiles {
		if p < 0 || p > 100 {
			result.Add(ValidationError{
				Field:    "performance.percentiles",
				Value:    fmt.Sprintf("%d", p),
				Message:  "percentile must be in [0,100]",
				Expected: "an integer between 0 and 100",
			})
		}
	}

	if y.Retry.MaxRetries < 0 {
		result.Add(ValidationError{
			Field:    "retry.max_retries",
			Value:    fmt.Sprintf("%d", y.Retry.MaxRetries),
			Message:  "must be >= 0",
			Expected: "a non-negative integer",
		})
	}

	for _, k := range y.Retry.RetryErrors {
		if !isValidTransportError(k) {
			result.Add(ValidationError{
				Field:      "retry.retry_errors",
				Value:      k,
				Message:    "unknown transport error kind",
				Expected:   strings.Join(validTransportErrors, ", "),
				DidYouMean: FindClosestMatch(k, validTransportErrors),
				Hint:       GetHint("retry.retry_errors"),
			})
		}
	}

	return result
}
