package guest

import (
	"github.com/wippyai/incident-bridge/engine"
	"github.com/wippyai/incident-bridge/wasm"
)

// Exported operation names.
const (
	OpCreateIncident = "createIncident"
	OpChangeStatus   = "changeStatus"
)

// Memory layout.
const (
	incidentPrefixAddr = 16
	titleErrAddr       = 32
	statusErrAddr      = 64
	HeapBase           = 1024
)

const (
	incidentPrefix = "INC-"
	titleErr       = "title must not be empty"
	statusErr      = "status must not be empty"
)

// Type indices.
const (
	typeI32ToVoid uint32 = iota
	typeVoidToI32
	typeI32ToI32
	typeVoidToVoid
	typeI32x2ToI32
	typeI32x3ToI32
	typeI32x4ToI32
)

// Function indices; imports come first.
const (
	fnThrow uint32 = iota
	fnSequence
	fnAlloc
	fnReset
	fnStrlen
	fnItoa
	fnConcat
	fnCreateIncident
	fnChangeStatus
)

const heapGlobal = 0

type options struct {
	without   map[string]bool
	trapping  map[string]bool
	returning map[string]bool
}

type Option func(*options)

// Without leaves op defined but unexported.
func Without(op string) Option {
	return func(o *options) { o.without[op] = true }
}

// Trapping replaces the body of op with a bare trap.
func Trapping(op string) Option {
	return func(o *options) { o.trapping[op] = true }
}

// ReturningAfterThrow makes op raise its error message unconditionally and
// then return normally instead of trapping.
func ReturningAfterThrow(op string) Option {
	return func(o *options) { o.returning[op] = true }
}

// IncidentService returns the encoded incident service module.
func IncidentService(opts ...Option) []byte {
	o := &options{without: map[string]bool{}, trapping: map[string]bool{}, returning: map[string]bool{}}
	for _, opt := range opts {
		opt(o)
	}

	i32 := wasm.ValI32
	m := &wasm.Module{
		Types: []wasm.FuncType{
			typeI32ToVoid:  {Params: []wasm.ValType{i32}},
			typeVoidToI32:  {Results: []wasm.ValType{i32}},
			typeI32ToI32:   {Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}},
			typeVoidToVoid: {},
			typeI32x2ToI32: {Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
			typeI32x3ToI32: {Params: []wasm.ValType{i32, i32, i32}, Results: []wasm.ValType{i32}},
			typeI32x4ToI32: {Params: []wasm.ValType{i32, i32, i32, i32}, Results: []wasm.ValType{i32}},
		},
		Imports: []wasm.Import{
			{Module: engine.HostModule, Name: engine.HostThrow, TypeIdx: typeI32ToVoid},
			{Module: engine.HostModule, Name: engine.HostSequence, TypeIdx: typeVoidToI32},
		},
		Memory:  &wasm.Memory{Min: 1},
		Globals: []wasm.Global{{Init: HeapBase}},
		Data: []wasm.Data{
			{Offset: incidentPrefixAddr, Bytes: cstr(incidentPrefix)},
			{Offset: titleErrAddr, Bytes: cstr(titleErr)},
			{Offset: statusErrAddr, Bytes: cstr(statusErr)},
		},
	}

	m.Funcs = []wasm.Func{
		{TypeIdx: typeI32ToI32, Locals: locals(1), Body: allocBody()},
		{TypeIdx: typeVoidToVoid, Body: resetBody()},
		{TypeIdx: typeI32ToI32, Locals: locals(1), Body: strlenBody()},
		{TypeIdx: typeI32ToI32, Locals: locals(3), Body: itoaBody()},
		{TypeIdx: typeI32x2ToI32, Locals: locals(3), Body: concatBody()},
		{TypeIdx: typeI32x3ToI32, Body: o.body(OpCreateIncident, titleErrAddr, createIncidentBody)},
		{TypeIdx: typeI32x4ToI32, Body: o.body(OpChangeStatus, statusErrAddr, changeStatusBody)},
	}

	m.Exports = []wasm.Export{
		{Name: engine.ExportMemory, Kind: wasm.KindMemory, Idx: 0},
		{Name: engine.ExportAlloc, Kind: wasm.KindFunc, Idx: fnAlloc},
		{Name: engine.ExportReset, Kind: wasm.KindFunc, Idx: fnReset},
	}
	for _, op := range []struct {
		name string
		idx  uint32
	}{
		{OpCreateIncident, fnCreateIncident},
		{OpChangeStatus, fnChangeStatus},
	} {
		if !o.without[op.name] {
			m.Exports = append(m.Exports, wasm.Export{Name: op.name, Kind: wasm.KindFunc, Idx: op.idx})
		}
	}

	return m.Encode()
}

func (o *options) body(op string, msg int32, build func() []byte) []byte {
	if o.trapping[op] {
		return wasm.NewAsm().Op(wasm.OpUnreachable).End().Bytes()
	}
	if o.returning[op] {
		return append(wasm.NewAsm().I32Const(msg).Call(fnThrow).Bytes(), build()...)
	}
	return build()
}

// alloc(n): bump allocate n bytes, 8-byte aligned, growing memory as needed.
func allocBody() []byte {
	const n, p = 0, 1
	return wasm.NewAsm().
		GlobalGet(heapGlobal).LocalSet(p).
		LocalGet(p).LocalGet(n).Op(wasm.OpI32Add).
		I32Const(7).Op(wasm.OpI32Add).
		I32Const(-8).Op(wasm.OpI32And).
		GlobalSet(heapGlobal).
		Block().Loop().
		GlobalGet(heapGlobal).MemorySize().I32Const(16).Op(wasm.OpI32Shl).Op(wasm.OpI32LeU).BrIf(1).
		I32Const(1).MemoryGrow().I32Const(-1).Op(wasm.OpI32Eq).
		If().Op(wasm.OpUnreachable).End().
		Br(0).
		End().End().
		LocalGet(p).
		End().Bytes()
}

func resetBody() []byte {
	return wasm.NewAsm().
		I32Const(HeapBase).GlobalSet(heapGlobal).
		End().Bytes()
}

func strlenBody() []byte {
	const s, n = 0, 1
	return wasm.NewAsm().
		Block().Loop().
		LocalGet(s).LocalGet(n).Op(wasm.OpI32Add).Load8U().Op(wasm.OpI32Eqz).BrIf(1).
		LocalGet(n).I32Const(1).Op(wasm.OpI32Add).LocalSet(n).
		Br(0).
		End().End().
		LocalGet(n).
		End().Bytes()
}

// itoa(v): decimal rendering of v as unsigned, in a fresh allocation.
func itoaBody() []byte {
	const v, length, tmp, p = 0, 1, 2, 3
	return wasm.NewAsm().
		LocalGet(v).LocalSet(tmp).
		I32Const(1).LocalSet(length).
		Block().Loop().
		LocalGet(tmp).I32Const(10).Op(wasm.OpI32LtU).BrIf(1).
		LocalGet(tmp).I32Const(10).Op(wasm.OpI32DivU).LocalSet(tmp).
		LocalGet(length).I32Const(1).Op(wasm.OpI32Add).LocalSet(length).
		Br(0).
		End().End().
		LocalGet(length).I32Const(1).Op(wasm.OpI32Add).Call(fnAlloc).LocalSet(p).
		LocalGet(p).LocalGet(length).Op(wasm.OpI32Add).I32Const(0).Store8().
		Block().Loop().
		LocalGet(length).Op(wasm.OpI32Eqz).BrIf(1).
		LocalGet(length).I32Const(1).Op(wasm.OpI32Sub).LocalSet(length).
		LocalGet(p).LocalGet(length).Op(wasm.OpI32Add).
		LocalGet(v).I32Const(10).Op(wasm.OpI32RemU).I32Const('0').Op(wasm.OpI32Add).
		Store8().
		LocalGet(v).I32Const(10).Op(wasm.OpI32DivU).LocalSet(v).
		Br(0).
		End().End().
		LocalGet(p).
		End().Bytes()
}

// concat(a, b): a followed by b in a fresh allocation.
func concatBody() []byte {
	const a, b, la, lb, r = 0, 1, 2, 3, 4
	return wasm.NewAsm().
		LocalGet(a).Call(fnStrlen).LocalSet(la).
		LocalGet(b).Call(fnStrlen).LocalSet(lb).
		LocalGet(la).LocalGet(lb).Op(wasm.OpI32Add).I32Const(1).Op(wasm.OpI32Add).Call(fnAlloc).LocalSet(r).
		LocalGet(r).LocalGet(a).LocalGet(la).MemoryCopy().
		LocalGet(r).LocalGet(la).Op(wasm.OpI32Add).LocalGet(b).LocalGet(lb).MemoryCopy().
		LocalGet(r).LocalGet(la).Op(wasm.OpI32Add).LocalGet(lb).Op(wasm.OpI32Add).I32Const(0).Store8().
		LocalGet(r).
		End().Bytes()
}

func createIncidentBody() []byte {
	const title = 0
	a := wasm.NewAsm()
	raiseIfEmpty(a, title, titleErrAddr)
	return a.
		I32Const(incidentPrefixAddr).
		Call(fnSequence).Call(fnItoa).
		Call(fnConcat).
		End().Bytes()
}

func changeStatusBody() []byte {
	const status = 1
	a := wasm.NewAsm()
	raiseIfEmpty(a, status, statusErrAddr)
	return a.
		LocalGet(status).
		End().Bytes()
}

// raiseIfEmpty throws msg and traps when the string in local is empty.
func raiseIfEmpty(a *wasm.Asm, local uint32, msg int32) {
	a.LocalGet(local).Call(fnStrlen).Op(wasm.OpI32Eqz).
		If().
		I32Const(msg).Call(fnThrow).Op(wasm.OpUnreachable).
		End()
}

func locals(n int) []wasm.ValType {
	l := make([]wasm.ValType, n)
	for i := range l {
		l[i] = wasm.ValI32
	}
	return l
}

func cstr(s string) []byte {
	return append([]byte(s), 0)
}
