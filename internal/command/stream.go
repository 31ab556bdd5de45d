package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/pacer/internal/domain"
)

// maxLine bounds a single JSON-lines message.
const maxLine = 1 << 20

// Response is written for every input line by Apply.
type Response struct {
	Line   int            `json:"line"`
	OK     bool           `json:"ok"`
	Result *Result        `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError carries a failed command's error code and message.
type ResponseError struct {
	Code    domain.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
}

// Stats summarises an Apply run.
type Stats struct {
	Applied int
	Failed  int
}

// Apply reads JSON-lines commands from r, dispatches each against h and
// writes one Response line per command to w. Blank lines and lines
// starting with '#' are skipped. A failed command does not stop the run;
// local storage failures do, since later commands would fail the same way.
func Apply(ctx context.Context, r io.Reader, w io.Writer, h Handler) (Stats, error) {
	var stats Stats
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		resp := Response{Line: line}
		cmd, err := Decode(raw)
		if err == nil {
			var res Result
			res, err = Dispatch(ctx, h, cmd)
			if err == nil {
				resp.OK = true
				resp.Result = &res
			}
		}
		if err != nil {
			stats.Failed++
			resp.Error = &ResponseError{Code: domain.CodeOf(err), Message: err.Error()}
		} else {
			stats.Applied++
		}

		if encErr := enc.Encode(resp); encErr != nil {
			return stats, fmt.Errorf("write response: %w", encErr)
		}
		if domain.IsLocalStorage(err) {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return stats, domain.NewInvalidInput("command", fmt.Sprintf("line %d exceeds %d bytes", line+1, maxLine))
		}
		return stats, fmt.Errorf("read commands: %w", err)
	}
	return stats, nil
}
