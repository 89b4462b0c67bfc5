// Package client consumes a hivesync server: a reconciling stream mirror,
// optimistic field overrides and a REST client.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/colonyops/hivesync/internal/core/stream"
)

var (
	// ErrSequenceGap reports an envelope that does not directly follow the
	// last one applied. The mirror can no longer be trusted.
	ErrSequenceGap = errors.New("envelope sequence gap")
	// ErrNoSnapshot reports a patch received before any snapshot.
	ErrNoSnapshot = errors.New("stream did not start with a snapshot")
)

// Mirror is a local replica of one topic's collection. It is rebuilt by
// every snapshot and advanced by patches applied strictly in order.
type Mirror struct {
	topic stream.Topic
	root  string
	key   string

	doc      []byte
	seq      uint64
	ready    bool
	finished bool
}

// NewMirror returns an empty mirror for topic.
func NewMirror(topic stream.Topic) *Mirror {
	root := topic.Kind.Root()
	return &Mirror{
		topic: topic,
		root:  root,
		key:   strings.TrimPrefix(root, "/"),
	}
}

// Apply advances the mirror by one envelope. A snapshot replaces the
// mirror outright; any other envelope must carry the next sequence number.
func (m *Mirror) Apply(env stream.Envelope) error {
	if env.Patch.IsSnapshot(m.root) {
		doc, err := json.Marshal(map[string]json.RawMessage{m.key: env.Patch[0].Value})
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		m.doc = doc
		m.seq = env.Seq
		m.ready = true
		m.finished = env.Finished
		return nil
	}

	if !m.ready {
		return ErrNoSnapshot
	}
	if env.Seq != m.seq+1 {
		return fmt.Errorf("%w: at %d, received %d", ErrSequenceGap, m.seq, env.Seq)
	}

	if len(env.Patch) > 0 {
		raw, err := json.Marshal(env.Patch)
		if err != nil {
			return fmt.Errorf("encode patch: %w", err)
		}
		p, err := jsonpatch.DecodePatch(raw)
		if err != nil {
			return fmt.Errorf("decode patch: %w", err)
		}
		doc, err := p.Apply(m.doc)
		if err != nil {
			return fmt.Errorf("apply patch %d: %w", env.Seq, err)
		}
		m.doc = doc
	}

	m.seq = env.Seq
	m.finished = m.finished || env.Finished
	return nil
}

// Seq returns the sequence number of the last applied envelope.
func (m *Mirror) Seq() uint64 { return m.seq }

// Finished reports whether the producer announced the end of the topic.
func (m *Mirror) Finished() bool { return m.finished }

// Value returns the mirrored collection as JSON, or nil before the first
// snapshot.
func (m *Mirror) Value() json.RawMessage {
	if !m.ready {
		return nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(m.doc, &doc); err != nil {
		return nil
	}
	return doc[m.key]
}
