// Package config loads a YAML suite file into the core's data model:
// one or more spec.TestSpec values (expanded from templates and data
// sources at load time), a shared spec.RetryPolicy, and the HTTP client
// options a run should use. This is the only place pkg/template and
// pkg/feed are invoked — once per test case, never on the request path.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arrowcurve/loadctl/internal/httpclient"
	"github.com/arrowcurve/loadctl/internal/httpvalidate"
	"github.com/arrowcurve/loadctl/pkg/feed"
	"github.com/arrowcurve/loadctl/pkg/spec"
	"github.com/arrowcurve/loadctl/pkg/template"
)

// YAMLValidator is one entry of the validators list: contains, regex, or
// json_path.
type YAMLValidator struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
	Path  string `yaml:"path,omitempty"`
}

// YAMLConfig is the on-disk shape of a suite file.
type YAMLConfig struct {
	Target struct {
		URL       string            `yaml:"url"`
		Method    string            `yaml:"method,omitempty"`
		Headers   map[string]string `yaml:"headers,omitempty"`
		Body      string            `yaml:"body,omitempty"`
		BodyFile  string            `yaml:"body_file,omitempty"`
		BodyJSON  interface{}       `yaml:"body_json,omitempty"`
		Timeout   string            `yaml:"timeout,omitempty"`
		Insecure  bool              `yaml:"insecure,omitempty"`
		KeepAlive bool              `yaml:"keep_alive,omitempty"`
		HTTP2     bool              `yaml:"http2,omitempty"`
		H2C       bool              `yaml:"h2c,omitempty"`
	} `yaml:"target"`

	SuccessCodes []int          `yaml:"success_codes,omitempty"`
	Validators   []YAMLValidator `yaml:"validators,omitempty"`

	Retry struct {
		MaxRetries    int      `yaml:"max_retries,omitempty"`
		BackoffBase   string   `yaml:"backoff_base,omitempty"`
		BackoffMax    string   `yaml:"backoff_max,omitempty"`
		RetryStatuses []int    `yaml:"retry_statuses,omitempty"`
		RetryErrors   []string `yaml:"retry_errors,omitempty"`
	} `yaml:"retry,omitempty"`

	Performance struct {
		Repeat       int      `yaml:"repeat,omitempty"`
		Concurrency  int      `yaml:"concurrency,omitempty"`
		Mode         string   `yaml:"mode,omitempty"`
		ThresholdMS  float64  `yaml:"threshold_ms,omitempty"`
		RPSMode      string   `yaml:"rps_mode,omitempty"`
		Percentiles  []int    `yaml:"percentiles,omitempty"`
		OutputFile   string   `yaml:"output_file,omitempty"`
		OutputFormat string   `yaml:"output_format,omitempty"`
		StopIf       string   `yaml:"stop_if,omitempty"`
		MinSamples   int64    `yaml:"min_samples,omitempty"`
	} `yaml:"performance,omitempty"`

	Data []struct {
		Name string `yaml:"name"`
		Path string `yaml:"path"`
	} `yaml:"data,omitempty"`
}

// Suite is the loaded, ready-to-run result of a suite file: every test
// case the data sources expanded to, sharing one RetryPolicy and one set
// of HTTP client Options.
type Suite struct {
	Tests         []*spec.TestSpec
	Retry         *spec.RetryPolicy
	ClientOptions httpclient.Options
}

// Load reads and expands a suite file at path.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}

	var y YAMLConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("parse suite file: %w", err)
	}

	if result := Validate(y); result.HasErrors() {
		return nil, fmt.Errorf("%s", result.FormatErrors())
	}

	body, err := resolveBody(y.Target.Body, y.Target.BodyFile, y.Target.BodyJSON)
	if err != nil {
		return nil, err
	}

	timeout, err := parseOptionalDuration(y.Target.Timeout)
	if err != nil {
		return nil, fmt.Errorf("target.timeout: %w", err)
	}

	expectedStatus := map[int]bool{200: true}
	if len(y.SuccessCodes) > 0 {
		expectedStatus = make(map[int]bool, len(y.SuccessCodes))
		for _, code := range y.SuccessCodes {
			expectedStatus[code] = true
		}
	}

	validators, err := buildValidators(y.Validators)
	if err != nil {
		return nil, err
	}

	perf, err := buildPerformance(y)
	if err != nil {
		return nil, err
	}

	retry, err := buildRetryPolicy(y)
	if err != nil {
		return nil, err
	}

	feeders, err := buildFeeders(y.Data)
	if err != nil {
		return nil, err
	}

	tests, err := expandTests(y, body, timeout, expectedStatus, validators, perf, feeders)
	if err != nil {
		return nil, err
	}

	clientOpts := httpclient.Options{
		MaxConnsPerHost: maxConnsFor(perf),
		Insecure:        y.Target.Insecure,
		H2C:             y.Target.H2C,
		HTTP2:           y.Target.HTTP2,
		KeepAlive:       y.Target.KeepAlive,
	}

	return &Suite{Tests: tests, Retry: retry, ClientOptions: clientOpts}, nil
}

func maxConnsFor(perf *spec.PerformanceSpec) int {
	if perf == nil {
		return 0
	}
	return perf.Concurrency * 2
}

func resolveBody(inlineBody, bodyFile string, bodyJSON interface{}) ([]byte, error) {
	switch {
	case bodyFile != "":
		b, err := os.ReadFile(bodyFile)
		if err != nil {
			return nil, fmt.Errorf("read target.body_file %q: %w", bodyFile, err)
		}
		return b, nil
	case bodyJSON != nil:
		b, err := json.Marshal(bodyJSON)
		if err != nil {
			return nil, fmt.Errorf("marshal target.body_json: %w", err)
		}
		return b, nil
	case inlineBody != "":
		return []byte(inlineBody), nil
	default:
		return nil, nil
	}
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func buildValidators(yv []YAMLValidator) ([]spec.Validator, error) {
	if len(yv) == 0 {
		return nil, nil
	}
	out := make([]spec.Validator, 0, len(yv))
	for i, v := range yv {
		switch strings.ToLower(v.Type) {
		case "", "contains":
			out = append(out, httpvalidate.Contains{Value: v.Value})
		case "regex":
			re, err := httpvalidate.NewRegex(v.Value)
			if err != nil {
				return nil, fmt.Errorf("validators[%d]: %w", i, err)
			}
			out = append(out, re)
		case "json_path":
			out = append(out, httpvalidate.JSONPath{Path: v.Path, Value: v.Value})
		default:
			return nil, fmt.Errorf("validators[%d]: unknown type %q%s", i, v.Type, suggestion(v.Type, validValidatorTypes))
		}
	}
	return out, nil
}

func buildPerformance(y YAMLConfig) (*spec.PerformanceSpec, error) {
	p := y.Performance
	if p.Repeat == 0 && p.Concurrency == 0 && p.Mode == "" && p.OutputFile == "" {
		return nil, nil
	}

	mode := spec.ModeParallelWorkers
	switch strings.ToLower(p.Mode) {
	case "", "parallel-workers", "parallel":
		mode = spec.ModeParallelWorkers
	case "cooperative-async", "cooperative", "async":
		mode = spec.ModeCooperativeAsync
	default:
		return nil, fmt.Errorf("performance.mode: unknown value %q%s", p.Mode, suggestion(p.Mode, validDispatchModes))
	}

	rpsMode := spec.RPSWall
	switch strings.ToLower(p.RPSMode) {
	case "", "wall":
		rpsMode = spec.RPSWall
	case "response":
		rpsMode = spec.RPSResponse
	default:
		return nil, fmt.Errorf("performance.rps_mode: unknown value %q%s", p.RPSMode, suggestion(p.RPSMode, validRPSModes))
	}

	var breaker *spec.CircuitBreaker
	if p.StopIf != "" {
		breaker = &spec.CircuitBreaker{StopIf: p.StopIf, MinSamples: p.MinSamples}
	}

	return &spec.PerformanceSpec{
		Repeat:       p.Repeat,
		Concurrency:  p.Concurrency,
		Mode:         mode,
		ThresholdMS:  p.ThresholdMS,
		RPSMode:      rpsMode,
		Percentiles:  p.Percentiles,
		OutputFile:   p.OutputFile,
		OutputFormat: p.OutputFormat,
		Breaker:      breaker,
	}, nil
}

func buildRetryPolicy(y YAMLConfig) (*spec.RetryPolicy, error) {
	backoffBase, err := parseOptionalDuration(y.Retry.BackoffBase)
	if err != nil {
		return nil, fmt.Errorf("retry.backoff_base: %w", err)
	}
	if backoffBase == 0 {
		backoffBase = time.Second
	}
	backoffMax, err := parseOptionalDuration(y.Retry.BackoffMax)
	if err != nil {
		return nil, fmt.Errorf("retry.backoff_max: %w", err)
	}
	if backoffMax == 0 {
		backoffMax = 30 * time.Second
	}

	var retryStatuses map[int]bool
	if len(y.Retry.RetryStatuses) > 0 {
		retryStatuses = make(map[int]bool, len(y.Retry.RetryStatuses))
		for _, code := range y.Retry.RetryStatuses {
			retryStatuses[code] = true
		}
	}

	var retryErrors map[spec.TransportErrorKind]bool
	if len(y.Retry.RetryErrors) > 0 {
		retryErrors = make(map[spec.TransportErrorKind]bool, len(y.Retry.RetryErrors))
		for _, k := range y.Retry.RetryErrors {
			if !isValidTransportError(k) {
				return nil, fmt.Errorf("retry.retry_errors: unknown kind %q%s", k, suggestion(k, validTransportErrors))
			}
			retryErrors[spec.TransportErrorKind(k)] = true
		}
	}

	return spec.NewRetryPolicy(y.Retry.MaxRetries, backoffBase, backoffMax, retryStatuses, retryErrors)
}

func buildFeeders(sources []struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}) (map[string]*feed.CSVFeeder, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	feeders := make(map[string]*feed.CSVFeeder, len(sources))
	for _, d := range sources {
		f, err := feed.NewCSVFeeder(d.Path)
		if err != nil {
			return nil, fmt.Errorf("data %q: %w", d.Name, err)
		}
		feeders[d.Name] = f
	}
	return feeders, nil
}

// expandTests builds one spec.TestSpec per data row (or exactly one, with
// an empty session, when no data sources are configured). Every
// placeholder in the URL, headers, and body is resolved once here against
// that row, so the dispatchers and executor never see a template.
func expandTests(y YAMLConfig, body []byte, timeout time.Duration, expectedStatus map[int]bool, validators []spec.Validator, perf *spec.PerformanceSpec, feeders map[string]*feed.CSVFeeder) ([]*spec.TestSpec, error) {
	rowCount := 1
	for _, f := range feeders {
		if f.Len() > rowCount {
			rowCount = f.Len()
		}
	}

	proc := template.New()
	tests := make([]*spec.TestSpec, 0, rowCount)

	for i := 0; i < rowCount; i++ {
		session := make(map[string]string)
		for name, f := range feeders {
			for k, v := range f.Row(i) {
				session[name+"."+k] = v
			}
		}

		headers := make(map[string]string, len(y.Target.Headers))
		for k, v := range y.Target.Headers {
			headers[k] = proc.Process(v, session)
		}

		method := strings.ToUpper(y.Target.Method)
		if method == "" {
			method = "GET"
		}

		tests = append(tests, &spec.TestSpec{
			Name:           fmt.Sprintf("%s %s", method, y.Target.URL),
			Method:         method,
			URL:            proc.Process(y.Target.URL, session),
			Headers:        headers,
			Body:           []byte(proc.Process(string(body), session)),
			ExpectedStatus: expectedStatus,
			Validators:     validators,
			Timeout:        timeout,
			Performance:    perf,
		})
	}

	return tests, nil
}

func isValidTransportError(k string) bool {
	for _, v := range validTransportErrors {
		if k == v {
			return true
		}
	}
	return false
}

// suggestion formats a "did you mean" clause for an error message, or the
// empty string if nothing in validOptions is a plausible typo correction.
func suggestion(input string, validOptions []string) string {
	match := FindClosestMatch(input, validOptions)
	if match == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", match)
}
