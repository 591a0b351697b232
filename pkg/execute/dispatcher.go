package execute

import (
	"context"
	"time"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/telemetry"
)

// Request is one code execution submitted by a session member.
type Request struct {
	Language string
	Code     string
	Stdin    string
}

// Stage is one sandbox phase of the result. Code is nil when the sandbox
// reported no exit code for the phase.
type Stage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   *int   `json:"code"`
}

// Result is the normalized execution outcome broadcast to the session.
// Success means the sandbox ran the program to completion with exit code
// zero; compile and runtime failures still produce a Result, not an error.
// The flattened output/error/exitCode fields derive from the stages;
// ExecutionTime is the completion timestamp in unix milliseconds.
type Result struct {
	Success       bool   `json:"success"`
	Output        string `json:"output"`
	Error         string `json:"error,omitempty"`
	ExitCode      int    `json:"exitCode"`
	ExecutionTime int64  `json:"executionTime"`
	Language      string `json:"language"`
	Version       string `json:"version"`
	Compile       *Stage `json:"compile,omitempty"`
	Run           Stage  `json:"run"`
}

// Dispatcher turns execution requests into sandbox calls and normalizes the
// responses. Errors it returns carry execution_timeout, execution_failed or
// unsupported_language kinds.
type Dispatcher struct {
	client *Client
}

// NewDispatcher creates a dispatcher over a sandbox client.
func NewDispatcher(client *Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Exec runs one request against the sandbox.
func (d *Dispatcher) Exec(ctx context.Context, req Request) (Result, error) {
	rt, ok := RuntimeFor(req.Language)
	if !ok {
		telemetry.Executions.WithLabelValues("unsupported").Inc()
		return Result{}, errors.NewUnsupportedLanguageError("language " + req.Language + " is not supported")
	}

	start := time.Now()
	resp, err := d.client.execute(ctx, pistonRequest{
		Language:       rt.Language,
		Version:        rt.Version,
		Files:          []pistonFile{{Name: rt.Filename, Content: req.Code}},
		Stdin:          req.Stdin,
		CompileTimeout: compileTimeoutMS,
		RunTimeout:     runTimeoutMS,
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		outcome := "failed"
		if errors.IsKind(err, errors.ErrExecutionTimeout) {
			outcome = "timeout"
		}
		telemetry.Executions.WithLabelValues(outcome).Inc()
		logger.Warnw("execution failed",
			"language", req.Language, "elapsed_ms", elapsed, "error", err)
		return Result{}, err
	}

	result := normalize(resp)
	if result.Success {
		telemetry.Executions.WithLabelValues("success").Inc()
	} else {
		telemetry.Executions.WithLabelValues("error").Inc()
	}
	logger.Debugw("execution completed",
		"language", req.Language, "success", result.Success, "elapsed_ms", elapsed)
	return result, nil
}

// normalize carries the sandbox's compile/run stages through and derives the
// flattened fields. The run stage wins where both report; a failed compile
// has no run output.
func normalize(resp *pistonResponse) Result {
	out := Result{
		Output:        resp.Run.Stdout,
		Error:         resp.Run.Stderr,
		ExecutionTime: time.Now().UnixMilli(),
		Language:      resp.Language,
		Version:       resp.Version,
		Run:           Stage{Stdout: resp.Run.Stdout, Stderr: resp.Run.Stderr, Code: resp.Run.Code},
	}

	if resp.Compile != nil {
		out.Compile = &Stage{Stdout: resp.Compile.Stdout, Stderr: resp.Compile.Stderr, Code: resp.Compile.Code}
		if out.Error == "" {
			out.Error = resp.Compile.Stderr
		}
	}

	switch {
	case resp.Run.Code != nil:
		out.ExitCode = *resp.Run.Code
	case resp.Compile != nil && resp.Compile.Code != nil:
		out.ExitCode = *resp.Compile.Code
	}

	out.Success = out.ExitCode == 0 && resp.Run.Signal == "" && out.Error == ""
	return out
}
