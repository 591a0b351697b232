package execute

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
)

func intPtr(i int) *int { return &i }

func sandboxServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestExecSuccess(t *testing.T) {
	t.Parallel()

	var captured pistonRequest
	client := sandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/execute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		resp := pistonResponse{
			Language: "python",
			Version:  "3.10.0",
			Run:      pistonStage{Stdout: "hi\n", Code: intPtr(0)},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	d := NewDispatcher(client)
	result, err := d.Exec(context.Background(), Request{
		Language: "python",
		Code:     "print('hi')",
		Stdin:    "input",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "hi\n", result.Output)
	assert.Empty(t, result.Error)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "python", result.Language)
	assert.Equal(t, "3.10.0", result.Version)

	// The run stage is carried through and the timestamp is current.
	assert.Equal(t, "hi\n", result.Run.Stdout)
	require.NotNil(t, result.Run.Code)
	assert.Equal(t, 0, *result.Run.Code)
	assert.Nil(t, result.Compile)
	assert.InDelta(t, time.Now().UnixMilli(), result.ExecutionTime, 5000)

	// The request carries the pinned runtime and sandbox limits.
	assert.Equal(t, "python", captured.Language)
	assert.Equal(t, "3.10.0", captured.Version)
	require.Len(t, captured.Files, 1)
	assert.Equal(t, "main.py", captured.Files[0].Name)
	assert.Equal(t, "print('hi')", captured.Files[0].Content)
	assert.Equal(t, "input", captured.Stdin)
	assert.Equal(t, compileTimeoutMS, captured.CompileTimeout)
	assert.Equal(t, runTimeoutMS, captured.RunTimeout)
}

func TestExecRuntimeError(t *testing.T) {
	t.Parallel()

	client := sandboxServer(t, func(w http.ResponseWriter, _ *http.Request) {
		resp := pistonResponse{
			Language: "python",
			Version:  "3.10.0",
			Run:      pistonStage{Stderr: "NameError: x", Code: intPtr(1)},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	d := NewDispatcher(client)
	result, err := d.Exec(context.Background(), Request{Language: "python", Code: "x"})
	require.NoError(t, err, "a failed run is a result, not an error")

	assert.False(t, result.Success)
	assert.Equal(t, "NameError: x", result.Error)
	assert.Equal(t, 1, result.ExitCode)
}

func TestExecCompileError(t *testing.T) {
	t.Parallel()

	client := sandboxServer(t, func(w http.ResponseWriter, _ *http.Request) {
		resp := pistonResponse{
			Language: "cpp",
			Version:  "10.2.0",
			Compile:  &pistonStage{Stderr: "error: expected ';'", Code: intPtr(1)},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	d := NewDispatcher(client)
	result, err := d.Exec(context.Background(), Request{Language: "cpp", Code: "int main() { return 0 }"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "error: expected ';'", result.Error)
	assert.Equal(t, 1, result.ExitCode)

	require.NotNil(t, result.Compile)
	assert.Equal(t, "error: expected ';'", result.Compile.Stderr)
	assert.Nil(t, result.Run.Code, "a failed compile has no run stage")
}

func TestExecKilledBySignal(t *testing.T) {
	t.Parallel()

	client := sandboxServer(t, func(w http.ResponseWriter, _ *http.Request) {
		resp := pistonResponse{
			Language: "python",
			Version:  "3.10.0",
			Run:      pistonStage{Stdout: "partial", Code: intPtr(0), Signal: "SIGKILL"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	d := NewDispatcher(client)
	result, err := d.Exec(context.Background(), Request{Language: "python", Code: "while True: pass"})
	require.NoError(t, err)
	assert.False(t, result.Success, "a signalled run is not a success")
}

func TestExecUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewClient("http://unused.invalid"))
	_, err := d.Exec(context.Background(), Request{Language: "cobol", Code: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrUnsupportedLanguage, errors.Kind(err))
}

func TestExecSandboxFailure(t *testing.T) {
	t.Parallel()

	client := sandboxServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	d := NewDispatcher(client)
	_, err := d.Exec(context.Background(), Request{Language: "python", Code: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrExecutionFailed, errors.Kind(err))
}

func TestExecSandboxMessage(t *testing.T) {
	t.Parallel()

	client := sandboxServer(t, func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(pistonResponse{
			Message: "runtime python-9.9.9 is unknown",
		}))
	})

	d := NewDispatcher(client)
	_, err := d.Exec(context.Background(), Request{Language: "python", Code: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrExecutionFailed, errors.Kind(err))
}

func TestExecSandboxUnreachable(t *testing.T) {
	t.Parallel()

	// Connection refused is a transport failure, not a timeout.
	d := NewDispatcher(NewClient("http://127.0.0.1:1"))
	_, err := d.Exec(context.Background(), Request{Language: "python", Code: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrExecutionFailed, errors.Kind(err))
}

func TestExecContextCancelled(t *testing.T) {
	t.Parallel()

	client := sandboxServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(client)
	_, err := d.Exec(ctx, Request{Language: "python", Code: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrExecutionTimeout, errors.Kind(err))
}

func TestRuntimesListing(t *testing.T) {
	t.Parallel()

	client := sandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/runtimes", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode([]RemoteRuntime{
			{Language: "python", Version: "3.10.0", Aliases: []string{"py"}},
			{Language: "javascript", Version: "18.15.0", Aliases: []string{"node"}},
		}))
	})

	list, err := client.Runtimes(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "python", list[0].Language)
}

func TestRuntimesRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	attempts := 0
	client := sandboxServer(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode([]RemoteRuntime{
			{Language: "python", Version: "3.10.0"},
		}))
	})

	list, err := client.Runtimes(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 2, attempts)
}
