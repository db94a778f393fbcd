package runtime

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/incident-bridge/errors"
	"github.com/wippyai/incident-bridge/resource"
)

type attachmentKey struct{}

// Attachment registers one worker with the runtime. It owns a private guest
// instance per service it has used, so attachments never share guest memory.
// An attachment is used by one goroutine at a time.
type Attachment struct {
	handle   *Handle
	arena    *resource.Arena
	services map[string]*Service
	id       uint64
	depth    int
	frame    int
	mu       sync.Mutex
	released bool
}

func newAttachment(h *Handle, id uint64) *Attachment {
	return &Attachment{
		handle:   h,
		arena:    resource.NewArena(),
		services: make(map[string]*Service),
		id:       id,
		depth:    1,
	}
}

func withAttachment(ctx context.Context, a *Attachment) context.Context {
	return context.WithValue(ctx, attachmentKey{}, a)
}

func attachmentFrom(ctx context.Context) *Attachment {
	a, _ := ctx.Value(attachmentKey{}).(*Attachment)
	return a
}

// ID identifies the attachment in logs.
func (a *Attachment) ID() uint64 {
	return a.id
}

func (a *Attachment) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return false
	}
	a.depth++
	return true
}

// Release undoes one Attach. The last release closes the attachment's guest
// instances and invalidates its references; releasing after that is a no-op.
func (a *Attachment) Release() {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.depth--
	if a.depth > 0 {
		a.mu.Unlock()
		return
	}
	a.released = true
	services := a.services
	a.services = nil
	a.mu.Unlock()

	ctx := context.Background()
	for name, s := range services {
		if err := s.instance.Close(ctx); err != nil {
			a.handle.logger.Warn("close instance",
				zap.Uint64("attachment", a.id),
				zap.String("service", name),
				zap.Error(err))
		}
	}
	_ = a.arena.Close()
	a.handle.live.Add(-1)
	a.handle.logger.Debug("detached", zap.Uint64("attachment", a.id))
}

// Service returns the attachment's instance of the named service, creating
// it on first use. It must be called from inside an executor run.
func (a *Attachment) Service(ctx context.Context, name string) (*Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return nil, errors.Attachment("attachment released", nil)
	}
	if a.frame == 0 {
		return nil, errors.Attachment("service resolution outside an executor run", nil)
	}
	if s, ok := a.services[name]; ok {
		return s, nil
	}

	def, ok := a.handle.engine.Lookup(name)
	if !ok {
		return nil, errors.ServiceNotFound(name, "")
	}
	inst, err := a.handle.engine.Instantiate(ctx, def)
	if err != nil {
		return nil, errors.Attachment("instantiate "+name, err)
	}

	s := &Service{att: a, def: def, instance: inst}
	a.services[name] = s
	a.handle.logger.Debug("service instantiated",
		zap.Uint64("attachment", a.id),
		zap.String("service", name))
	return s, nil
}

// Services returns the names of the services instantiated in this attachment.
func (a *Attachment) Services() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.services))
	for name := range a.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Attachment) enterFrame() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return errors.Attachment("attachment released", nil)
	}
	a.frame++
	return nil
}

func (a *Attachment) leaveFrame(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dropped := a.arena.PopFrame(a.frame)
	a.frame--
	a.handle.logger.Debug("frame closed",
		zap.Uint64("attachment", a.id),
		zap.Int("depth", a.frame),
		zap.Int("dropped_refs", dropped),
		zap.Int("live_refs", a.arena.Len()))
	if a.frame > 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	for name, s := range a.services {
		if err := s.instance.Reset(ctx); err != nil {
			a.handle.logger.Warn("guest reset failed, dropping instance",
				zap.Uint64("attachment", a.id),
				zap.String("service", name),
				zap.Error(err))
			_ = s.instance.Close(ctx)
			delete(a.services, name)
		}
	}
}

func (a *Attachment) newRef(s *Service, ptr uint32) (Ref, error) {
	a.mu.Lock()
	frame := a.frame
	a.mu.Unlock()

	h, err := a.arena.Insert(ptr, frame)
	if err != nil {
		return Ref{}, errors.Attachment("register reference", err)
	}
	return Ref{owner: a, svc: s, handle: h}, nil
}

func (a *Attachment) resolve(r Ref, s *Service, path []string) (uint32, error) {
	if r.owner == nil || r.handle.IsZero() {
		return 0, errors.Marshal(errors.PhaseEncode, path, "zero reference")
	}
	if r.owner != a {
		return 0, errors.StaleReference(path, "reference belongs to another attachment")
	}
	if s != nil && r.svc != s {
		return 0, errors.StaleReference(path, "reference belongs to service "+r.svc.Name())
	}
	ptr, ok := a.arena.Get(r.handle)
	if !ok {
		return 0, errors.StaleReference(path, "reference outlived its call")
	}
	return ptr, nil
}
