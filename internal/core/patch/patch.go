// Package patch computes RFC 6902 JSON patches describing the transition
// between two snapshots of a collection.
package patch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op is a JSON patch operation name.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
)

// IsValid reports whether op is one of the RFC 6902 operations.
func (op Op) IsValid() bool {
	switch op {
	case OpAdd, OpRemove, OpReplace, OpMove, OpCopy, OpTest:
		return true
	default:
		return false
	}
}

// Operation is a single patch operation. Value holds pre-encoded JSON so
// that falsy values (false, 0, "") survive encoding.
type Operation struct {
	Op    Op              `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Patch is an ordered list of operations.
type Patch []Operation

// IsSnapshot reports whether p is a single replace against root.
func (p Patch) IsSnapshot(root string) bool {
	return len(p) == 1 && p[0].Op == OpReplace && p[0].Path == root
}

var tokenEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// EscapeToken escapes a reference token per RFC 6901.
func EscapeToken(s string) string {
	return tokenEscaper.Replace(s)
}

// Pointer joins root with escaped tokens.
//
//	Pointer("/tasks", "a/b") == "/tasks/a~1b"
func Pointer(root string, tokens ...string) string {
	var sb strings.Builder
	sb.WriteString(root)
	for _, tok := range tokens {
		sb.WriteByte('/')
		sb.WriteString(EscapeToken(tok))
	}
	return sb.String()
}

// Add returns an add operation for value at path.
func Add(path string, value any) (Operation, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Operation{}, fmt.Errorf("encode add %s: %w", path, err)
	}
	return Operation{Op: OpAdd, Path: path, Value: raw}, nil
}

// Replace returns a replace operation for value at path.
func Replace(path string, value any) (Operation, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Operation{}, fmt.Errorf("encode replace %s: %w", path, err)
	}
	return Operation{Op: OpReplace, Path: path, Value: raw}, nil
}

// Remove returns a remove operation for path.
func Remove(path string) Operation {
	return Operation{Op: OpRemove, Path: path}
}

// Snapshot returns the single-operation patch that replaces the whole
// collection at root with value. New subscribers always receive one of
// these first.
func Snapshot(root string, value any) (Patch, error) {
	op, err := Replace(root, value)
	if err != nil {
		return nil, err
	}
	return Patch{op}, nil
}
