package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// hookWaitDelay bounds how long output is drained after a hook is killed.
const hookWaitDelay = 500 * time.Millisecond

// HookRequest is written to a hook's stdin as JSON.
type HookRequest struct {
	JobID   string          `json:"job_id"`
	Command string          `json:"command"`
	Label   string          `json:"label"`
	Slot    string          `json:"slot"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// HookResponse is read from a hook's stdout.
type HookResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ExecSink runs external hook executables for each command.
type ExecSink struct {
	hooks []*Hook
}

// NewExecSink creates a sink for the given hooks.
func NewExecSink(hooks []*Hook) *ExecSink {
	return &ExecSink{hooks: hooks}
}

func (s *ExecSink) Name() string {
	return "exec"
}

// Hooks returns the configured hooks.
func (s *ExecSink) Hooks() []*Hook {
	return s.hooks
}

// Send runs every hook that accepts the command. Failures are joined.
func (s *ExecSink) Send(ctx context.Context, job Job) error {
	var errs []error
	for _, h := range s.hooks {
		if !h.Accepts(job.Command) {
			continue
		}
		resp, err := RunHook(ctx, h, HookRequest{
			JobID:   job.ID,
			Command: job.Command,
			Label:   job.Label,
			Slot:    job.Slot,
			Config:  h.Manifest.Config,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", h.Manifest.Name, err))
			continue
		}
		if !resp.Success {
			errs = append(errs, fmt.Errorf("hook %s: %s", h.Manifest.Name, resp.Error))
		}
	}
	return errors.Join(errs...)
}

// RunHook executes a hook with req on stdin and parses its stdout. The hook
// is killed when ctx expires.
func RunHook(ctx context.Context, h *Hook, req HookRequest) (*HookResponse, error) {
	cmd := exec.CommandContext(ctx, h.Executable)
	cmd.Dir = h.Path
	cmd.WaitDelay = hookWaitDelay

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("hook execution aborted: %w", ctxErr)
	}

	if err != nil {
		if msg := stderr.String(); msg != "" {
			return nil, fmt.Errorf("hook execution failed: %w, stderr: %s", err, msg)
		}
		return nil, fmt.Errorf("hook execution failed: %w", err)
	}

	var response HookResponse
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse hook response: %w, stdout: %s", err, stdout.String())
	}

	return &response, nil
}
