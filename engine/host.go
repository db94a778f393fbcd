package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	incidentbridge "github.com/wippyai/incident-bridge"
	"github.com/wippyai/incident-bridge/errors"
)

func (e *Engine) instantiateHost(ctx context.Context) error {
	_, err := e.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().WithFunc(e.hostThrow).Export(HostThrow).
		NewFunctionBuilder().WithFunc(e.hostSequence).Export(HostSequence).
		Instantiate(ctx)
	return err
}

// errThrown unwinds the guest after bridge.throw.
var errThrown = errors.New(errors.PhaseInvoke, errors.KindRemoteInvocation).
	Detail("guest raised an exception").
	Build()

// hostThrow records a guest exception on the sink of the current call and
// unwinds the guest, so the call fails even if the guest would return.
func (e *Engine) hostThrow(ctx context.Context, m api.Module, ptr uint32) {
	msg, err := incidentbridge.ReadCString(memoryView{m.Memory()}, ptr, e.maxMsg, HostThrow)
	if err != nil {
		Logger().Debug("unreadable exception message", zap.Uint32("ptr", ptr), zap.Error(err))
		msg = "guest raised an exception with an unreadable message"
	}
	if sink := sinkFrom(ctx); sink != nil {
		sink.raise(msg)
	}
	panic(errThrown)
}

func (e *Engine) hostSequence(_ context.Context) uint32 {
	return e.seq.Add(1)
}

type sinkKey struct{}

// exceptionSink collects at most one exception per guest call.
type exceptionSink struct {
	message string
	raised  bool
}

func (s *exceptionSink) raise(msg string) {
	if s.raised {
		return
	}
	s.message = msg
	s.raised = true
}

func withSink(ctx context.Context, s *exceptionSink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

func sinkFrom(ctx context.Context) *exceptionSink {
	s, _ := ctx.Value(sinkKey{}).(*exceptionSink)
	return s
}
