// Package draft holds the per-attempt follow-up draft and the coordinator
// that drives its edit, queue and send lifecycle.
package draft

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrSendInProgress = errors.New("send already in progress")
	ErrNothingToQueue = errors.New("nothing to queue")
	ErrNothingToSend  = errors.New("nothing to send")
	ErrNotRunning     = errors.New("attempt is not running")
	ErrDispatchFailed = errors.New("dispatch failed")
	ErrClosed         = errors.New("draft coordinator closed")
)

// State is the derived lifecycle state of an attempt's draft.
type State string

const (
	StateIdle    State = "idle"
	StateEditing State = "editing"
	StateQueued  State = "queued"
	StateSending State = "sending"
)

// Draft is the in-progress follow-up message for one attempt. Queued and
// Sending are never both set.
type Draft struct {
	AttemptID string    `json:"attempt_id"`
	Prompt    string    `json:"prompt"`
	Variant   string    `json:"variant,omitempty"`
	ImageIDs  []string  `json:"image_ids"`
	Queued    bool      `json:"queued"`
	Sending   bool      `json:"sending"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State derives the lifecycle state from the flags.
func (d Draft) State() State {
	switch {
	case d.Sending:
		return StateSending
	case d.Queued:
		return StateQueued
	default:
		return StateEditing
	}
}

// IsEmpty reports whether the draft has nothing worth sending.
func (d Draft) IsEmpty() bool {
	return strings.TrimSpace(d.Prompt) == "" && len(d.ImageIDs) == 0
}

// Content is the user-editable part of a draft.
type Content struct {
	Prompt   string   `json:"prompt"`
	Variant  string   `json:"variant,omitempty"`
	ImageIDs []string `json:"image_ids"`
}

// Content returns the editable fields of d.
func (d Draft) Content() Content {
	return Content{Prompt: d.Prompt, Variant: d.Variant, ImageIDs: d.ImageIDs}
}

// FollowUp is a draft handed to a Dispatcher.
type FollowUp struct {
	AttemptID string   `json:"attempt_id"`
	Prompt    string   `json:"prompt"`
	Variant   string   `json:"variant,omitempty"`
	ImageIDs  []string `json:"image_ids,omitempty"`
}

// Store persists drafts.
type Store interface {
	List(ctx context.Context) ([]Draft, error)
	Save(ctx context.Context, d Draft) error
	Delete(ctx context.Context, attemptID string) error
}

// Repository is the authoritative home of drafts. Every write must be
// visible to draft-stream subscribers when it returns.
type Repository interface {
	Draft(attemptID string) (Draft, bool)
	SaveDraft(ctx context.Context, d Draft) error
	DeleteDraft(ctx context.Context, attemptID string) error
}

// Activity answers whether an attempt's agent turn is in progress. It
// returns an error when the attempt does not exist.
type Activity interface {
	AttemptRunning(attemptID string) (bool, error)
}

// Dispatcher delivers a follow-up to the agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, f FollowUp) error
}

// Status is a draft together with its lifecycle state, as reported to API
// clients.
type Status struct {
	Draft
	State State `json:"state"`
}
