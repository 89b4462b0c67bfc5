package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/logging"
	"github.com/colonyops/hivesync/internal/core/stream"
)

// Update is delivered after every applied envelope.
type Update struct {
	Topic string
	Seq   uint64
	// Value is the whole mirrored collection after the envelope.
	Value json.RawMessage
	// Snapshot is set when the mirror was rebuilt rather than patched,
	// which happens on every (re)connect.
	Snapshot bool
	Finished bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithHeader sets extra headers sent with every stream handshake.
func WithHeader(h http.Header) Option {
	return func(r *Reconciler) { r.header = h }
}

// WithBackoff overrides the reconnect policy. The policy is reset after
// every successful snapshot.
func WithBackoff(fn func() backoff.BackOff) Option {
	return func(r *Reconciler) { r.newBackoff = fn }
}

// WithLogger sets the reconciler's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// Reconciler keeps a Mirror of one topic in sync with the server. On any
// connection loss it throws the mirror away and resubscribes; it never
// tries to catch up from a sequence number.
type Reconciler struct {
	wsURL      string
	topic      stream.Topic
	dialer     *websocket.Dialer
	header     http.Header
	newBackoff func() backoff.BackOff
	log        zerolog.Logger
}

// NewReconciler creates a reconciler for topic on the server at baseURL
// (http:// or https://).
func NewReconciler(baseURL string, topic stream.Topic, opts ...Option) *Reconciler {
	u := strings.TrimRight(baseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)

	r := &Reconciler{
		wsURL:  u + "/api/stream/" + topic.String(),
		topic:  topic,
		dialer: websocket.DefaultDialer,
		newBackoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxInterval = 30 * time.Second
			bo.MaxElapsedTime = 0
			return bo
		},
		log: logging.Component("reconciler"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run delivers updates to fn until ctx is cancelled, the topic finishes, or
// the backoff policy gives up. fn runs on the reconciler's goroutine.
func (r *Reconciler) Run(ctx context.Context, fn func(Update)) error {
	ctx = logging.WithTopic(ctx, r.topic.String())
	bo := r.newBackoff()
	bo.Reset()

	for {
		finished, err := r.session(ctx, fn, bo.Reset)
		if finished {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return fmt.Errorf("stream %s: %w", r.topic, perm.Err)
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("stream %s: giving up: %w", r.topic, err)
		}
		r.log.Info().Ctx(ctx).Err(err).Dur("retry_in", wait).Msg("stream lost, resubscribing")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection with a fresh mirror. It reports whether the
// topic finished.
func (r *Reconciler) session(ctx context.Context, fn func(Update), connected func()) (bool, error) {
	conn, resp, err := r.dialer.DialContext(ctx, r.wsURL, r.header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return false, backoff.Permanent(fmt.Errorf("dial: %s", resp.Status))
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	mirror := NewMirror(r.topic)
	for {
		var env stream.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
				return false, fmt.Errorf("dropped as a slow consumer: %w", err)
			}
			return false, fmt.Errorf("read: %w", err)
		}

		snapshot := env.Patch.IsSnapshot(mirror.root)
		if err := mirror.Apply(env); err != nil {
			return false, err
		}
		if snapshot {
			connected()
		}

		fn(Update{
			Topic:    env.Topic,
			Seq:      mirror.Seq(),
			Value:    mirror.Value(),
			Snapshot: snapshot,
			Finished: mirror.Finished(),
		})

		if mirror.Finished() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return true, nil
		}
	}
}
