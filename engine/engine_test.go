package engine_test

import (
	"context"
	"slices"
	"testing"

	"github.com/tetratelabs/wazero/api"

	incidentbridge "github.com/wippyai/incident-bridge"
	"github.com/wippyai/incident-bridge/engine"
	"github.com/wippyai/incident-bridge/errors"
	"github.com/wippyai/incident-bridge/guest"
	"github.com/wippyai/incident-bridge/wasm"
)

const service = "com/incident/jni/IncidentServiceFacade"

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	e, err := engine.New(ctx, &engine.Config{MemoryLimitPages: 16})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func newInstance(t *testing.T, opts ...guest.Option) *engine.Instance {
	t.Helper()
	ctx := context.Background()
	e := newEngine(t)
	svc, err := e.Register(ctx, service, guest.IncidentService(opts...))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := e.Instantiate(ctx, svc)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return inst
}

func TestEngine_Register(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	svc, err := e.Register(ctx, service, guest.IncidentService())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if svc.Name() != service {
		t.Fatalf("Name() = %q", svc.Name())
	}
	if got := svc.Operations(); !slices.Equal(got, []string{guest.OpChangeStatus, guest.OpCreateIncident}) {
		t.Fatalf("Operations() = %v", got)
	}

	ft, ok := svc.Export(guest.OpCreateIncident)
	if !ok || ft.String() != "(i32, i32, i32) -> (i32)" {
		t.Fatalf("createIncident type = %s, %v", ft, ok)
	}

	if got, ok := e.Lookup(service); !ok || got != svc {
		t.Fatal("Lookup did not return the registered service")
	}
	if _, ok := e.Lookup("missing"); ok {
		t.Fatal("Lookup found an unregistered service")
	}
	if got := e.Services(); !slices.Equal(got, []string{service}) {
		t.Fatalf("Services() = %v", got)
	}

	replaced, err := e.Register(ctx, service, guest.IncidentService(guest.Without(guest.OpChangeStatus)))
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if got, _ := e.Lookup(service); got != replaced {
		t.Fatal("re-registration did not replace the service")
	}
	if got := replaced.Operations(); !slices.Equal(got, []string{guest.OpCreateIncident}) {
		t.Fatalf("Operations() after replace = %v", got)
	}
}

func TestEngine_RegisterRejects(t *testing.T) {
	i32 := wasm.ValI32
	noAlloc := (&wasm.Module{
		Memory:  &wasm.Memory{Min: 1},
		Exports: []wasm.Export{{Name: engine.ExportMemory, Kind: wasm.KindMemory}},
	}).Encode()

	foreignImport := (&wasm.Module{
		Types:   []wasm.FuncType{{Params: []wasm.ValType{i32}}},
		Imports: []wasm.Import{{Module: "env", Name: "log", TypeIdx: 0}},
		Memory:  &wasm.Memory{Min: 1},
		Exports: []wasm.Export{{Name: engine.ExportMemory, Kind: wasm.KindMemory}},
	}).Encode()

	noMemory := (&wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []wasm.Func{{TypeIdx: 0, Body: wasm.NewAsm().End().Bytes()}},
		Exports: []wasm.Export{
			{Name: engine.ExportReset, Kind: wasm.KindFunc, Idx: 0},
		},
	}).Encode()

	wrongAlloc := (&wasm.Module{
		Types:  []wasm.FuncType{{}},
		Memory: &wasm.Memory{Min: 1},
		Funcs:  []wasm.Func{{TypeIdx: 0, Body: wasm.NewAsm().End().Bytes()}},
		Exports: []wasm.Export{
			{Name: engine.ExportMemory, Kind: wasm.KindMemory},
			{Name: engine.ExportAlloc, Kind: wasm.KindFunc, Idx: 0},
			{Name: engine.ExportReset, Kind: wasm.KindFunc, Idx: 0},
		},
	}).Encode()

	tests := []struct {
		name string
		svc  string
		wasm []byte
		kind errors.Kind
	}{
		{"empty name", "", guest.IncidentService(), errors.KindInvalidInput},
		{"garbage", service, []byte("not wasm"), errors.KindInvalidData},
		{"missing alloc", service, noAlloc, errors.KindInvalidData},
		{"foreign import", service, foreignImport, errors.KindInvalidData},
		{"missing memory", service, noMemory, errors.KindInvalidData},
		{"wrong alloc type", service, wrongAlloc, errors.KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			_, err := e.Register(context.Background(), tt.svc, tt.wasm)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %q, want %q (%v)", got, tt.kind, err)
			}
			if len(e.Services()) != 0 {
				t.Fatal("rejected module was registered")
			}
		})
	}
}

func TestInstance_AllocAndReset(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t)

	first, err := inst.Alloc(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if first != guest.HeapBase {
		t.Fatalf("first alloc = %d, want %d", first, guest.HeapBase)
	}
	second, err := inst.Alloc(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if second != first+8 {
		t.Fatalf("second alloc = %d, want 8-byte aligned %d", second, first+8)
	}

	if err := inst.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	again, err := inst.Alloc(ctx, 1)
	if err != nil || again != guest.HeapBase {
		t.Fatalf("alloc after reset = %d, %v", again, err)
	}

	// Larger than one page forces memory.grow.
	before := inst.Size()
	if _, err := inst.Alloc(ctx, 2*wasm.PageSize); err != nil {
		t.Fatal(err)
	}
	if inst.Size() <= before {
		t.Fatalf("memory did not grow: %d -> %d", before, inst.Size())
	}
}

func TestInstance_MemoryBounds(t *testing.T) {
	inst := newInstance(t)

	if _, err := inst.Read(inst.Size(), 1); !errors.Is(err, errors.ErrMarshal) {
		t.Fatalf("Read past end = %v", err)
	}
	if err := inst.Write(inst.Size()-1, []byte{1, 2}); !errors.Is(err, errors.ErrMarshal) {
		t.Fatalf("Write past end = %v", err)
	}
}

func TestInstance_Call(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t)

	write := func(s string) uint64 {
		ptr, err := incidentbridge.WriteCString(ctx, inst, inst, s)
		if err != nil {
			t.Fatal(err)
		}
		return api.EncodeU32(ptr)
	}

	res, err := inst.Call(ctx, guest.OpCreateIncident, write("Title"), write("Description"), write("High"))
	if err != nil {
		t.Fatalf("createIncident: %v", err)
	}
	id, err := incidentbridge.ReadCString(inst, api.DecodeU32(res[0]), 64)
	if err != nil || id != "INC-1" {
		t.Fatalf("createIncident = %q, %v", id, err)
	}

	_, err = inst.Call(ctx, guest.OpCreateIncident, write(""), write("Description"), write("High"))
	var exc *engine.Exception
	if !errors.As(err, &exc) {
		t.Fatalf("err = %v, want *engine.Exception", err)
	}
	if exc.Message != "title must not be empty" {
		t.Fatalf("Message = %q", exc.Message)
	}

	if _, err := inst.Call(ctx, "missing"); !errors.Is(err, errors.ErrServiceNotFound) {
		t.Fatalf("missing export = %v", err)
	}
}

func TestInstance_ThrowUnwindsGuest(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t, guest.ReturningAfterThrow(guest.OpChangeStatus))

	args := make([]uint64, 4)
	for i, s := range []string{"1", "Open", "User", "Comment"} {
		ptr, err := incidentbridge.WriteCString(ctx, inst, inst, s)
		if err != nil {
			t.Fatal(err)
		}
		args[i] = api.EncodeU32(ptr)
	}

	res, err := inst.Call(ctx, guest.OpChangeStatus, args...)
	var exc *engine.Exception
	if !errors.As(err, &exc) {
		t.Fatalf("Call = %v, %v; want *engine.Exception", res, err)
	}
	if exc.Message != "status must not be empty" {
		t.Fatalf("Message = %q", exc.Message)
	}

	// The instance stays usable and the next call starts with a clean sink.
	if err := inst.Reset(ctx); err != nil {
		t.Fatalf("reset after throw: %v", err)
	}
	if _, err := inst.Alloc(ctx, 8); err != nil {
		t.Fatalf("alloc after throw: %v", err)
	}
}

func TestInstance_Trap(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t, guest.Trapping(guest.OpChangeStatus))

	_, err := inst.Call(ctx, guest.OpChangeStatus, 0, 0, 0, 0)
	var trap *engine.Trap
	if !errors.As(err, &trap) {
		t.Fatalf("err = %v, want *engine.Trap", err)
	}
}

func TestEngine_SequenceIsShared(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	svc, err := e.Register(ctx, service, guest.IncidentService())
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for range 2 {
		inst, err := e.Instantiate(ctx, svc)
		if err != nil {
			t.Fatal(err)
		}
		ptr, err := incidentbridge.WriteCString(ctx, inst, inst, "Title")
		if err != nil {
			t.Fatal(err)
		}
		p := api.EncodeU32(ptr)
		res, err := inst.Call(ctx, guest.OpCreateIncident, p, p, p)
		if err != nil {
			t.Fatal(err)
		}
		id, err := incidentbridge.ReadCString(inst, api.DecodeU32(res[0]), 64)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
		_ = inst.Close(ctx)
	}
	if !slices.Equal(ids, []string{"INC-1", "INC-2"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestEngine_Close(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	svc, err := e.Register(ctx, service, guest.IncidentService())
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !e.Closed() {
		t.Fatal("Closed() = false")
	}
	if _, err := e.Instantiate(ctx, svc); err == nil {
		t.Fatal("Instantiate after Close succeeded")
	}
	if _, err := e.Register(ctx, service, guest.IncidentService()); err == nil {
		t.Fatal("Register after Close succeeded")
	}
}
