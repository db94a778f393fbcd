package runtime

import (
	"context"
	"testing"

	"github.com/wippyai/incident-bridge/engine"
	"github.com/wippyai/incident-bridge/guest"
)

const testService = "com/incident/jni/IncidentServiceFacade"

var (
	sigCreate = MustParseSignature(testService,
		"createIncident: func(title: string, description: string, priority: string) -> string")
	sigChange = MustParseSignature(testService,
		"changeStatus: func(id: string, status: string, assignee: string, comment: string) -> string")
)

// newTestExecutor returns an executor over a fresh engine with the incident
// service registered. With register false the engine has no services.
func newTestExecutor(t *testing.T, register bool, opts ...guest.Option) *Executor {
	t.Helper()
	ctx := context.Background()

	eng, err := engine.New(ctx, nil)
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(ctx) })

	if register {
		if _, err := eng.Register(ctx, testService, guest.IncidentService(opts...)); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	l := NewLoader()
	l.OnLoad(eng)
	return NewExecutor(l.Handle())
}

// invokeString runs sig with string args in its own run and decodes the result.
func invokeString(ctx context.Context, x *Executor, m *Marshaller, sig *Signature, args ...any) (string, error) {
	return Call(ctx, x, func(ctx context.Context, att *Attachment) (string, error) {
		svc, err := att.Service(ctx, sig.Service)
		if err != nil {
			return "", err
		}
		values, err := m.EncodeArgs(ctx, svc, sig, args...)
		if err != nil {
			return "", err
		}
		res, err := svc.Invoke(ctx, sig, values...)
		if err != nil {
			return "", err
		}
		return m.DecodeString(res)
	})
}
