package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/incident-bridge/errors"
)

// Exception is a guest-raised error reported through bridge.throw.
type Exception struct {
	Cause   error
	Message string
}

func (e *Exception) Error() string {
	return "guest exception: " + e.Message
}

func (e *Exception) Unwrap() error {
	return e.Cause
}

// Trap is a guest failure without a raised message.
type Trap struct {
	Cause error
}

func (t *Trap) Error() string {
	return "guest trap: " + t.Cause.Error()
}

func (t *Trap) Unwrap() error {
	return t.Cause
}

// Instance is one instantiation of a service. Not safe for concurrent use.
type Instance struct {
	service *Service
	module  api.Module
	alloc   api.Function
	reset   api.Function
}

// Service returns the service this instance was created from.
func (i *Instance) Service() *Service {
	return i.service
}

// Call invokes an exported function once.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.ServiceNotFound(i.service.name, name)
	}
	return i.call(ctx, fn, args...)
}

func (i *Instance) call(ctx context.Context, fn api.Function, args ...uint64) ([]uint64, error) {
	sink := &exceptionSink{}
	results, err := fn.Call(withSink(ctx, sink), args...)
	if sink.raised {
		return nil, &Exception{Message: sink.message, Cause: err}
	}
	if err != nil {
		return nil, &Trap{Cause: err}
	}
	return results, nil
}

// Alloc implements incidentbridge.Allocator.
func (i *Instance) Alloc(ctx context.Context, size uint32) (uint32, error) {
	res, err := i.call(ctx, i.alloc, api.EncodeU32(size))
	if err != nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindMarshal).
			Detail("allocate %d bytes", size).
			Cause(err).
			Build()
	}
	return api.DecodeU32(res[0]), nil
}

// Reset implements incidentbridge.Allocator.
func (i *Instance) Reset(ctx context.Context) error {
	_, err := i.call(ctx, i.reset)
	return err
}

// Read implements incidentbridge.Memory.
func (i *Instance) Read(offset, length uint32) ([]byte, error) {
	return memoryView{i.module.Memory()}.Read(offset, length)
}

// Write implements incidentbridge.Memory.
func (i *Instance) Write(offset uint32, data []byte) error {
	return memoryView{i.module.Memory()}.Write(offset, data)
}

// Size implements incidentbridge.Memory.
func (i *Instance) Size() uint32 {
	return i.module.Memory().Size()
}

// Closed reports whether the instance was closed.
func (i *Instance) Closed() bool {
	return i.module.IsClosed()
}

func (i *Instance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}

// memoryView adapts api.Memory to incidentbridge.Memory.
type memoryView struct {
	mem api.Memory
}

func (m memoryView) Read(offset, length uint32) ([]byte, error) {
	b, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDecode, nil, offset, m.mem.Size())
	}
	return b, nil
}

func (m memoryView) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, offset, m.mem.Size())
	}
	return nil
}

func (m memoryView) Size() uint32 {
	return m.mem.Size()
}

var _ fmt.Stringer = (*Service)(nil)

func (s *Service) String() string {
	return s.name
}
