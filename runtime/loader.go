package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/incident-bridge/engine"
	"github.com/wippyai/incident-bridge/errors"
)

// Version is a bridge interface version: major in the high 16 bits, minor in the low.
type Version uint32

// APIVersion is reported to the host loader by OnLoad.
const APIVersion Version = 0x00010008

func (v Version) Major() uint16 { return uint16(v >> 16) }
func (v Version) Minor() uint16 { return uint16(v) }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}

// Loader owns the process-wide runtime handle. Create one in main and pass it
// to whatever needs the handle.
type Loader struct {
	handle atomic.Pointer[Handle]
	logger *zap.Logger
	once   sync.Once
}

type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used by the loader, its handle and executors.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewLoader(opts ...Option) *Loader {
	o := buildOptions(opts)
	return &Loader{logger: o.logger}
}

// OnLoad stores the handle for e on the first call and returns APIVersion.
// Later calls keep the first engine and only return APIVersion.
func (l *Loader) OnLoad(e *engine.Engine) Version {
	if e == nil && !l.Loaded() {
		panic(errors.InvalidInput(errors.PhaseBootstrap, "OnLoad called with nil engine"))
	}

	l.once.Do(func() {
		l.handle.Store(&Handle{engine: e, logger: l.logger})
		l.logger.Info("runtime loaded",
			zap.Stringer("api_version", APIVersion),
			zap.Strings("services", e.Services()))
	})
	return APIVersion
}

// Loaded reports whether OnLoad has completed.
func (l *Loader) Loaded() bool {
	return l.handle.Load() != nil
}

// Handle returns the runtime handle. It panics before OnLoad: a bridge
// operation without a runtime is a host wiring bug.
func (l *Loader) Handle() *Handle {
	h := l.handle.Load()
	if h == nil {
		panic(errors.Uninitialized("runtime handle"))
	}
	return h
}

// Handle is the shared entry point to the embedded runtime. It is immutable
// and safe for concurrent use.
type Handle struct {
	engine *engine.Engine
	logger *zap.Logger
	live   atomic.Int64
	nextID atomic.Uint64
}

func (h *Handle) Engine() *engine.Engine {
	return h.engine
}

// Attached returns the number of live attachments.
func (h *Handle) Attached() int {
	return int(h.live.Load())
}

// Attach returns the attachment carried by ctx when it belongs to h, with its
// nesting depth increased. Otherwise it registers a new attachment and
// returns a context carrying it. Every successful Attach needs one Release.
func (h *Handle) Attach(ctx context.Context) (context.Context, *Attachment, error) {
	if att := attachmentFrom(ctx); att != nil && att.handle == h && att.acquire() {
		return ctx, att, nil
	}

	if h.engine.Closed() {
		return ctx, nil, errors.Attachment("runtime is shut down", nil)
	}

	att := newAttachment(h, h.nextID.Add(1))
	h.live.Add(1)
	h.logger.Debug("attached", zap.Uint64("attachment", att.id))
	return withAttachment(ctx, att), att, nil
}
