package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/oliveagle/jsonpath"
)

// Status classifies the outcome of a step or a whole check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// StepResult records one verified action inside a check. Steps are appended in
// execution order; the order is meaningful for diagnosis.
type StepResult struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CheckResult is the outcome of a single check invocation. Status is always
// derived from the steps via Aggregate, never set ad hoc.
type CheckResult struct {
	Name       string       `json:"name"`
	Status     Status       `json:"status"`
	DurationMs int64        `json:"duration_ms"`
	Steps      []StepResult `json:"steps"`
	Error      string       `json:"error,omitempty"`
}

// Summary counts check outcomes without collapsing them to a single verdict.
type Summary struct {
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
	Warn  int `json:"warn"`
	Skip  int `json:"skip"`
	Total int `json:"total"`
}

// Report is the product of one full run. It is superseded wholesale by the
// next run; nothing mutates it after assembly.
type Report struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	DurationMs  int64         `json:"duration_ms"`
	Summary     Summary       `json:"summary"`
	Checks      []CheckResult `json:"checks"`
}

// Aggregate folds step statuses into a check status:
// any fail wins; skips without a pass fold to skip; a pass alongside skips
// folds to warn; everything else (including zero steps) is pass.
func Aggregate(steps []StepResult) Status {
	var passes, fails, skips int
	for _, s := range steps {
		switch s.Status {
		case StatusFail:
			fails++
		case StatusPass:
			passes++
		case StatusSkip:
			skips++
		}
	}
	switch {
	case fails > 0:
		return StatusFail
	case passes == 0 && skips > 0:
		return StatusSkip
	case passes > 0 && skips > 0:
		return StatusWarn
	default:
		return StatusPass
	}
}

// Summarize counts check statuses. Total always equals len(checks).
func Summarize(checks []CheckResult) Summary {
	sum := Summary{Total: len(checks)}
	for _, c := range checks {
		switch c.Status {
		case StatusPass:
			sum.Pass++
		case StatusFail:
			sum.Fail++
		case StatusWarn:
			sum.Warn++
		case StatusSkip:
			sum.Skip++
		}
	}
	return sum
}

// FinishCheck assembles a CheckResult from the recorded steps. A non-nil fatal
// marks a check that aborted before completing its remaining steps.
func FinishCheck(name string, start time.Time, steps []StepResult, fatal error) CheckResult {
	result := CheckResult{
		Name:       name,
		Status:     Aggregate(steps),
		DurationMs: time.Since(start).Milliseconds(),
		Steps:      steps,
	}
	if fatal != nil {
		result.Error = fatal.Error()
	}
	return result
}

// SkippedCheck builds the short-circuit result for a check that is not
// applicable in the current environment. The single explanatory step keeps the
// lattice honest: no pass, one skip, so the check folds to skip.
func SkippedCheck(name, reason string) CheckResult {
	return CheckResult{
		Name:   name,
		Status: StatusSkip,
		Steps: []StepResult{{
			Name:   "precondition",
			Status: StatusSkip,
			Detail: reason,
		}},
	}
}

const maxDetailBytes = 300

// Validator inspects a parsed response and reports the first violated
// expectation.
type Validator func(res RequestResult) error

type stepOptions struct {
	skipStatuses map[int]string
	validators   []Validator
	detail       string
}

// StepOption tunes how a response is folded into a step.
type StepOption func(*stepOptions)

// WithSkipStatus treats the given status code as a known degraded condition:
// the step records skip with the reason instead of failing.
func WithSkipStatus(code int, reason string) StepOption {
	return func(o *stepOptions) {
		if o.skipStatuses == nil {
			o.skipStatuses = map[int]string{}
		}
		o.skipStatuses[code] = reason
	}
}

// WithValidator adds a structural assertion applied after the status check.
func WithValidator(v Validator) StepOption {
	return func(o *stepOptions) { o.validators = append(o.validators, v) }
}

// WithDetail sets the diagnostic detail recorded on success.
func WithDetail(detail string) StepOption {
	return func(o *stepOptions) { o.detail = detail }
}

// StepFromResponse folds a request outcome, an expected-status set and any
// structural validators into a single StepResult.
func StepFromResponse(name string, res RequestResult, expect []int, opts ...StepOption) StepResult {
	var options stepOptions
	for _, opt := range opts {
		opt(&options)
	}

	step := StepResult{Name: name, DurationMs: res.Duration.Milliseconds()}

	if res.Err != nil {
		step.Status = StatusFail
		step.Error = res.Err.Error()
		return step
	}
	if reason, ok := options.skipStatuses[res.Status]; ok {
		step.Status = StatusSkip
		step.Detail = reason
		return step
	}
	if !statusExpected(res.Status, expect) {
		step.Status = StatusFail
		step.Error = fmt.Sprintf("unexpected status %d (want %s)", res.Status, formatStatusSet(expect))
		step.Detail = truncate(res.RawText, maxDetailBytes)
		return step
	}
	for _, v := range options.validators {
		if err := v(res); err != nil {
			step.Status = StatusFail
			step.Error = err.Error()
			return step
		}
	}
	step.Status = StatusPass
	if options.detail != "" {
		step.Detail = options.detail
	} else {
		step.Detail = fmt.Sprintf("HTTP %d in %dms", res.Status, res.Duration.Milliseconds())
	}
	return step
}

func statusExpected(got int, expect []int) bool {
	for _, code := range expect {
		if got == code {
			return true
		}
	}
	return false
}

func formatStatusSet(expect []int) string {
	parts := make([]string, 0, len(expect))
	for _, code := range expect {
		parts = append(parts, fmt.Sprintf("%d", code))
	}
	return strings.Join(parts, " or ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ExpectField asserts that the value at a jsonpath expression equals want.
// The failure message names the offending field and both values.
func ExpectField(path string, want any) Validator {
	return func(res RequestResult) error {
		if res.Body == nil {
			return fmt.Errorf("response is not a JSON object: %s", truncate(res.RawText, maxDetailBytes))
		}
		got, err := jsonpath.JsonPathLookup(res.Body, path)
		if err != nil {
			return fmt.Errorf("field %s missing: %v", fieldName(path), err)
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return fmt.Errorf("%s=%q (expected %q)", fieldName(path), fmt.Sprintf("%v", got), fmt.Sprintf("%v", want))
		}
		return nil
	}
}

// ExpectPresent asserts that a value exists at the jsonpath expression.
// Create steps use it to fail loudly when a required identifier never
// materialized in an otherwise acceptable response.
func ExpectPresent(path string) Validator {
	return func(res RequestResult) error {
		if res.Body == nil {
			return fmt.Errorf("response is not a JSON object: %s", truncate(res.RawText, maxDetailBytes))
		}
		got, err := jsonpath.JsonPathLookup(res.Body, path)
		if err != nil || got == nil {
			return fmt.Errorf("field %s missing from response", fieldName(path))
		}
		return nil
	}
}

// ExpectNonEmptyList asserts that the value at path is a list. Whether an
// empty list is acceptable is an explicit caller decision, not an inference.
func ExpectNonEmptyList(path string, allowEmpty bool) Validator {
	return func(res RequestResult) error {
		if res.Body == nil {
			return fmt.Errorf("response is not a JSON object: %s", truncate(res.RawText, maxDetailBytes))
		}
		got, err := jsonpath.JsonPathLookup(res.Body, path)
		if err != nil {
			return fmt.Errorf("field %s missing: %v", fieldName(path), err)
		}
		list, ok := got.([]any)
		if !ok {
			return fmt.Errorf("field %s is %T, expected a list", fieldName(path), got)
		}
		if len(list) == 0 && !allowEmpty {
			return fmt.Errorf("field %s is empty, expected at least one entry", fieldName(path))
		}
		return nil
	}
}

// ExpectExpr asserts a boolean expression evaluated over the top-level fields
// of the parsed body, e.g. `status == 'ok' && rows >= 1`.
func ExpectExpr(exprStr string) Validator {
	return func(res RequestResult) error {
		if res.Body == nil {
			return fmt.Errorf("response is not a JSON object: %s", truncate(res.RawText, maxDetailBytes))
		}
		expr, err := govaluate.NewEvaluableExpression(exprStr)
		if err != nil {
			return fmt.Errorf("invalid expression %q: %w", exprStr, err)
		}
		out, err := expr.Evaluate(res.Body)
		if err != nil {
			return fmt.Errorf("evaluate %q: %w", exprStr, err)
		}
		ok, isBool := out.(bool)
		if !isBool {
			return fmt.Errorf("expression %q did not produce a boolean", exprStr)
		}
		if !ok {
			return fmt.Errorf("expression %q not satisfied by response", exprStr)
		}
		return nil
	}
}

func fieldName(path string) string {
	return strings.TrimPrefix(path, "$.")
}
