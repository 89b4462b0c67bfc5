package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/config"
	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/execution"
)

// NewDispatcher returns the follow-up dispatcher selected by cfg.
func NewDispatcher(cfg config.DispatchConfig, executions *ExecutionService, log zerolog.Logger) draft.Dispatcher {
	if cfg.Mode == config.DispatchWebhook {
		return NewWebhookDispatcher(cfg.URL, cfg.MaxRetries, log)
	}
	return NewLocalDispatcher(executions)
}

// LocalDispatcher delivers a follow-up by starting a new coding agent turn
// on the attempt and recording the prompt as the turn's first entry.
type LocalDispatcher struct {
	executions *ExecutionService
}

var _ draft.Dispatcher = (*LocalDispatcher)(nil)

// NewLocalDispatcher creates a LocalDispatcher.
func NewLocalDispatcher(executions *ExecutionService) *LocalDispatcher {
	return &LocalDispatcher{executions: executions}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, f draft.FollowUp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := d.executions.Start(ctx, f.AttemptID, execution.RunReasonCodingAgent)
	if err != nil {
		return err
	}
	return d.executions.AppendNormalizedLogs(ctx, p.ID, []execution.NormalizedEntry{
		{EntryType: execution.EntryUserMessage, Content: f.Prompt},
	})
}

// WebhookDispatcher POSTs follow-ups to an external orchestrator. Server
// errors and transport failures are retried with exponential backoff;
// client errors are not.
type WebhookDispatcher struct {
	url        string
	client     *http.Client
	maxRetries uint64
	log        zerolog.Logger
	backoff    func() backoff.BackOff
}

var _ draft.Dispatcher = (*WebhookDispatcher)(nil)

// NewWebhookDispatcher creates a WebhookDispatcher.
func NewWebhookDispatcher(url string, maxRetries int, log zerolog.Logger) *WebhookDispatcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &WebhookDispatcher{
		url:        url,
		client:     &http.Client{},
		maxRetries: uint64(maxRetries),
		log:        log.With().Str("component", "webhook-dispatcher").Logger(),
		backoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxInterval = 5 * time.Second
			return bo
		},
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, f draft.FollowUp) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode follow-up: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.log.Debug().Err(err).Int("attempt", attempt).Msg("webhook request failed")
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("webhook returned %s", resp.Status)
		default:
			return backoff.Permanent(fmt.Errorf("webhook rejected follow-up: %s", resp.Status))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(d.backoff(), d.maxRetries), ctx)
	return backoff.Retry(op, policy)
}
