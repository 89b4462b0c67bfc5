// Package iojson reads and writes JSON for command line output and input.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteWith writes obj to w as indented JSON. Marshal failures are
// reported on ew as a JSON error object.
func WriteWith(w io.Writer, ew io.Writer, obj any) error {
	bits, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return writeMarshalError(ew, err)
	}

	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// WriteLine writes obj to w as one compact JSON line, for streaming output
// consumed by line-oriented tools.
func WriteLine(w io.Writer, obj any) error {
	bits, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}

	bits = append(bits, '\n')
	_, err = w.Write(bits)
	return err
}

func writeMarshalError(ew io.Writer, cause error) error {
	bits, _ := json.Marshal(struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}{
		Message: "failed to marshal output",
		Error:   cause.Error(),
	})
	_, _ = fmt.Fprintln(ew, string(bits))
	return fmt.Errorf("marshal output: %w", cause)
}
