package runtime

import (
	"context"

	"github.com/wippyai/incident-bridge/errors"
)

// Body is the work done inside an executor run.
type Body func(ctx context.Context, att *Attachment) error

// Executor runs bodies inside an attachment and guarantees the attachment
// and the run's references are released however the body returns.
type Executor struct {
	handle *Handle
}

func NewExecutor(h *Handle) *Executor {
	return &Executor{handle: h}
}

func (x *Executor) Handle() *Handle {
	return x.handle
}

// Run executes body in the attachment carried by ctx, or in a fresh one
// that is released when body returns or panics.
func (x *Executor) Run(ctx context.Context, body Body) error {
	ctx, att, err := x.handle.Attach(ctx)
	if err != nil {
		return err
	}
	defer att.Release()

	return x.run(ctx, att, body)
}

// RunAttached executes body in att, which the caller keeps after the run.
func (x *Executor) RunAttached(ctx context.Context, att *Attachment, body Body) error {
	if att == nil || att.handle != x.handle {
		return errors.Attachment("attachment belongs to another runtime handle", nil)
	}
	if !att.acquire() {
		return errors.Attachment("attachment released", nil)
	}
	defer att.Release()

	return x.run(withAttachment(ctx, att), att, body)
}

func (x *Executor) run(ctx context.Context, att *Attachment, body Body) error {
	if err := att.enterFrame(); err != nil {
		return err
	}
	defer att.leaveFrame(ctx)

	return body(ctx, att)
}

// Call runs body with x and returns its value.
func Call[T any](ctx context.Context, x *Executor, body func(ctx context.Context, att *Attachment) (T, error)) (T, error) {
	var out T
	err := x.Run(ctx, func(ctx context.Context, att *Attachment) error {
		v, err := body(ctx, att)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
