package botjobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tannerhat/botjobs/pkg/core"
	"github.com/tannerhat/botjobs/pkg/security"
)

// EnqueueOption modifies a job before it is persisted.
type EnqueueOption interface {
	applyEnqueue(*core.Job)
}

type enqueueOptionFunc func(*core.Job)

func (f enqueueOptionFunc) applyEnqueue(j *core.Job) { f(j) }

// NotBefore keeps the job out of claim selection until t.
func NotBefore(t time.Time) EnqueueOption {
	return enqueueOptionFunc(func(j *core.Job) {
		nb := t
		j.NotBefore = &nb
	})
}

// Delay keeps the job out of claim selection for d from now.
func Delay(d time.Duration) EnqueueOption {
	return enqueueOptionFunc(func(j *core.Job) {
		nb := time.Now().Add(d)
		j.NotBefore = &nb
	})
}

// WithID sets an explicit job ID instead of a generated one.
func WithID(id string) EnqueueOption {
	return enqueueOptionFunc(func(j *core.Job) {
		j.ID = id
	})
}

// Enqueue validates, serializes, and persists a new pending job of the
// given kind. The payload is marshaled to JSON; pass nil for jobs that
// take no arguments. Returns the job ID.
//
// A kind does not have to be registered at enqueue time. Jobs whose
// kind is still unregistered when claimed are failed with an
// UnknownKindError.
func Enqueue(ctx context.Context, s Store, kind string, payload any, opts ...EnqueueOption) (string, error) {
	if err := security.ValidateKind(kind); err != nil {
		return "", err
	}

	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("botjobs: marshal payload: %w", err)
		}
	}
	if len(raw) > security.MaxPayloadSize {
		return "", core.ErrPayloadTooLarge
	}

	job := &core.Job{
		Kind:    kind,
		Payload: raw,
		Status:  core.StatusPending,
	}
	for _, opt := range opts {
		opt.applyEnqueue(job)
	}

	if err := s.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("botjobs: enqueue: %w", err)
	}
	return job.ID, nil
}
