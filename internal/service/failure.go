package service

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"runtime/debug"
	"strings"

	"rewrite-proxy-go/internal/model"
)

// Stage names a step of the per-request pipeline.
type Stage string

// Pipeline stages in order. StageFailed is terminal and reachable from any
// non-terminal stage.
const (
	StageReceived   Stage = "received"
	StageTranslated Stage = "translated"
	StageForwarded  Stage = "forwarded"
	StageClassified Stage = "classified"
	StageRewritten  Stage = "rewritten"
	StageSanitized  Stage = "sanitized"
	StageEmitted    Stage = "emitted"
	StageFailed     Stage = "failed"
)

// PipelineError records the stage the pipeline could not reach.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// genericErrorMessage replaces the diagnostics when error details are hidden.
const genericErrorMessage = "The upstream site could not be reached or its response could not be rewritten."

// ErrorResponse renders the fixed-shape failure response. With details the
// body carries the error message and a trace of the failed stage, the error
// chain and the current goroutine stack.
func ErrorResponse(err error, details bool) *model.Response {
	var b strings.Builder
	b.WriteString("<h1>Proxy Error</h1>")
	if details {
		fmt.Fprintf(&b, "<p>%s</p><pre>%s</pre>", html.EscapeString(err.Error()), html.EscapeString(diagnosticTrace(err)))
	} else {
		fmt.Fprintf(&b, "<p>%s</p>", genericErrorMessage)
	}

	return &model.Response{
		StatusCode: http.StatusInternalServerError,
		Headers:    map[string]string{"content-type": "text/html; charset=utf-8"},
		Body:       b.String(),
	}
}

func diagnosticTrace(err error) string {
	var b strings.Builder
	var pe *PipelineError
	if errors.As(err, &pe) {
		fmt.Fprintf(&b, "stage: %s\n", pe.Stage)
	}
	for i, e := 0, err; e != nil; i, e = i+1, errors.Unwrap(e) {
		fmt.Fprintf(&b, "#%d %T: %v\n", i, e, e)
	}
	b.WriteString("\n")
	b.Write(debug.Stack())
	return b.String()
}
