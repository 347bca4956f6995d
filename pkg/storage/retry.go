package storage

import (
	"context"

	"github.com/jllopis/slotsave/pkg/resilience"
	"github.com/jllopis/slotsave/pkg/slot"
)

// Retrying retries transient failures of another backend. Errors are
// retried only when the backend flags them recoverable.
type Retrying struct {
	next  Storage
	retry resilience.RetryConfig
}

// WithRetry wraps s so each call follows rc.
func WithRetry(s Storage, rc resilience.RetryConfig) *Retrying {
	return &Retrying{next: s, retry: rc}
}

func (r *Retrying) Read(ctx context.Context, name string) (slot.Container, error) {
	var c slot.Container
	err := r.retry.Do(ctx, func() error {
		var err error
		c, err = r.next.Read(ctx, name)
		return err
	})
	return c, err
}

func (r *Retrying) Write(ctx context.Context, name string, c slot.Container) error {
	return r.retry.Do(ctx, func() error { return r.next.Write(ctx, name, c) })
}

func (r *Retrying) Delete(ctx context.Context, name string) error {
	return r.retry.Do(ctx, func() error { return r.next.Delete(ctx, name) })
}

func (r *Retrying) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := r.retry.Do(ctx, func() error {
		var err error
		ok, err = r.next.Exists(ctx, name)
		return err
	})
	return ok, err
}

func (r *Retrying) List(ctx context.Context) ([]string, error) {
	var names []string
	err := r.retry.Do(ctx, func() error {
		var err error
		names, err = r.next.List(ctx)
		return err
	})
	return names, err
}
