package execute

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
)

const (
	// httpTimeout caps one sandbox HTTP round trip. It is deliberately
	// longer than the sandbox-side run timeout so a slow-but-successful
	// run still returns a result.
	httpTimeout = 15 * time.Second

	// Sandbox-side limits, in milliseconds, sent with every request.
	compileTimeoutMS = 10_000
	runTimeoutMS     = 3_000

	runtimesRetries = 3
)

// Client is a thin HTTP client for the Piston execution API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Piston client against baseURL, e.g.
// https://emkc.org/api/v2/piston.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: httpTimeout},
	}
}

// pistonFile is one source file of a piston execute request.
type pistonFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// pistonRequest is the POST /execute body.
type pistonRequest struct {
	Language       string       `json:"language"`
	Version        string       `json:"version"`
	Files          []pistonFile `json:"files"`
	Stdin          string       `json:"stdin"`
	CompileTimeout int          `json:"compile_timeout"`
	RunTimeout     int          `json:"run_timeout"`
}

// pistonStage is the compile or run section of a piston response.
type pistonStage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   *int   `json:"code"`
	Signal string `json:"signal"`
}

// pistonResponse is the POST /execute response body.
type pistonResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Run      pistonStage  `json:"run"`
	Compile  *pistonStage `json:"compile"`
	Message  string       `json:"message"`
}

// execute performs one sandbox call. Deadline overruns surface as
// execution_timeout; everything else as execution_failed.
func (c *Client) execute(ctx context.Context, req pistonRequest) (*pistonResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewExecutionFailedError("failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewExecutionFailedError("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (stderrors.As(err, &netErr) && netErr.Timeout()) {
			return nil, errors.NewExecutionTimeoutError("sandbox did not respond in time", err)
		}
		return nil, errors.NewExecutionFailedError("sandbox request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewExecutionFailedError("failed to read sandbox response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExecutionFailedError(
			fmt.Sprintf("sandbox returned status %d: %s", resp.StatusCode, truncate(string(raw), 200)), nil)
	}

	var out pistonResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.NewExecutionFailedError("failed to decode sandbox response", err)
	}
	if out.Message != "" {
		return nil, errors.NewExecutionFailedError(out.Message, nil)
	}
	return &out, nil
}

// RemoteRuntime is one entry of the sandbox's GET /runtimes listing.
type RemoteRuntime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
}

// Runtimes fetches the sandbox's live runtime listing, retrying transient
// failures with exponential backoff.
func (c *Client) Runtimes(ctx context.Context) ([]RemoteRuntime, error) {
	fetch := func() ([]RemoteRuntime, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/runtimes", nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("sandbox returned status %d", resp.StatusCode)
		}
		var out []RemoteRuntime
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}

	out, err := backoff.Retry(ctx, fetch,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(runtimesRetries))
	if err != nil {
		return nil, errors.NewExecutionFailedError("failed to list sandbox runtimes", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
