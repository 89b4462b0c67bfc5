// Package stream implements the topic registry and fan-out of patch
// envelopes to connected subscribers.
package stream

import (
	"errors"
	"fmt"
	"strings"

	"github.com/colonyops/hivesync/internal/core/patch"
)

// ErrUnknownKind is returned when a topic names an unsupported stream kind.
var ErrUnknownKind = errors.New("unknown stream kind")

// Kind is one of the independent stream kinds.
type Kind string

const (
	KindTasks              Kind = "tasks"               // keyed by project id
	KindExecutionProcesses Kind = "execution-processes" // keyed by attempt id, "" for all
	KindDiff               Kind = "diff"                // keyed by attempt id
	KindRawLogs            Kind = "raw-logs"            // keyed by process id
	KindNormalizedLogs     Kind = "normalized-logs"     // keyed by process id
	KindDrafts             Kind = "drafts"              // keyed by project id
)

// Kinds returns every supported kind.
func Kinds() []Kind {
	return []Kind{
		KindTasks,
		KindExecutionProcesses,
		KindDiff,
		KindRawLogs,
		KindNormalizedLogs,
		KindDrafts,
	}
}

// IsValid reports whether k is a supported kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindTasks, KindExecutionProcesses, KindDiff, KindRawLogs, KindNormalizedLogs, KindDrafts:
		return true
	default:
		return false
	}
}

// Root returns the JSON pointer of the collection a kind's patches address.
func (k Kind) Root() string {
	switch k {
	case KindTasks:
		return "/tasks"
	case KindExecutionProcesses:
		return "/execution_processes"
	case KindDrafts:
		return "/drafts"
	default:
		return "/entries"
	}
}

// Sequence reports whether the kind's collection is an append-only array
// rather than an id-keyed object.
func (k Kind) Sequence() bool {
	return k == KindRawLogs || k == KindNormalizedLogs
}

// AllowsEmptyKey reports whether the kind supports a global topic.
func (k Kind) AllowsEmptyKey() bool {
	return k == KindExecutionProcesses
}

// Topic is a (kind, key) pair subscribers attach to.
type Topic struct {
	Kind Kind
	Key  string
}

// NewTopic returns the topic for kind and key.
func NewTopic(kind Kind, key string) Topic {
	return Topic{Kind: kind, Key: key}
}

func (t Topic) String() string {
	if t.Key == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + "/" + t.Key
}

// Validate checks the kind is known and the key is present when required.
func (t Topic) Validate() error {
	if !t.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind)
	}
	if t.Key == "" && !t.Kind.AllowsEmptyKey() {
		return fmt.Errorf("stream %q requires a key", t.Kind)
	}
	return nil
}

// ParseTopic parses "kind" or "kind/key".
func ParseTopic(s string) (Topic, error) {
	kind, key, _ := strings.Cut(strings.Trim(s, "/"), "/")
	t := Topic{Kind: Kind(kind), Key: key}
	if err := t.Validate(); err != nil {
		return Topic{}, err
	}
	return t, nil
}

// Envelope is one message on a stream. Seq increases by one per envelope
// within a subscription, starting at the snapshot.
type Envelope struct {
	Topic    string      `json:"topic"`
	Seq      uint64      `json:"seq"`
	Patch    patch.Patch `json:"patch"`
	Finished bool        `json:"finished,omitempty"`
}
