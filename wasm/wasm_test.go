package wasm_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/incident-bridge/wasm"
)

func TestLEB128(t *testing.T) {
	unsigned := []struct {
		value   uint32
		encoded []byte
	}{
		{0, []byte{0x00}},
		{63, []byte{0x3f}},
		{128, []byte{0x80, 0x01}},
		{1024, []byte{0x80, 0x08}},
		{65536, []byte{0x80, 0x80, 0x04}},
		{0xFFFFFFFF, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range unsigned {
		var buf bytes.Buffer
		wasm.WriteLEB128u(&buf, tt.value)
		if !bytes.Equal(buf.Bytes(), tt.encoded) {
			t.Errorf("WriteLEB128u(%d) = %x, want %x", tt.value, buf.Bytes(), tt.encoded)
		}
	}

	signed := []struct {
		value   int32
		encoded []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{-8, []byte{0x78}},
		{64, []byte{0xc0, 0x00}},
		{-65, []byte{0xbf, 0x7f}},
		{1024, []byte{0x80, 0x08}},
	}
	for _, tt := range signed {
		var buf bytes.Buffer
		wasm.WriteLEB128s(&buf, tt.value)
		if !bytes.Equal(buf.Bytes(), tt.encoded) {
			t.Errorf("WriteLEB128s(%d) = %x, want %x", tt.value, buf.Bytes(), tt.encoded)
		}
	}
}

func TestFuncType(t *testing.T) {
	a := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}, Results: []wasm.ValType{wasm.ValF64}}
	b := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}, Results: []wasm.ValType{wasm.ValF64}}
	c := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}

	if !a.Equal(b) || a.Equal(c) {
		t.Fatal("Equal mismatch")
	}
	if got := a.String(); got != "(i32, i64) -> (f64)" {
		t.Fatalf("String() = %q", got)
	}
	if got := (wasm.FuncType{}).String(); got != "() -> ()" {
		t.Fatalf("empty String() = %q", got)
	}
}

// add(a, b) and a counter global, run through wazero.
func TestModule_EncodeRuns(t *testing.T) {
	ctx := context.Background()
	i32 := wasm.ValI32

	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
			{Results: []wasm.ValType{i32}},
		},
		Memory:  &wasm.Memory{Min: 1},
		Globals: []wasm.Global{{Init: 41}},
		Funcs: []wasm.Func{
			{TypeIdx: 0, Body: wasm.NewAsm().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).End().Bytes()},
			{TypeIdx: 1, Body: wasm.NewAsm().
				GlobalGet(0).I32Const(1).Op(wasm.OpI32Add).GlobalSet(0).
				I32Const(8).Load8U().
				GlobalGet(0).Op(wasm.OpI32Add).
				End().Bytes()},
		},
		Exports: []wasm.Export{
			{Name: "memory", Kind: wasm.KindMemory},
			{Name: "add", Kind: wasm.KindFunc, Idx: 0},
			{Name: "next", Kind: wasm.KindFunc, Idx: 1},
		},
		Data: []wasm.Data{{Offset: 8, Bytes: []byte{100}}},
	}

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := r.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	res, err := mod.ExportedFunction("add").Call(ctx, 40, 2)
	if err != nil || uint32(res[0]) != 42 {
		t.Fatalf("add = %v, %v", res, err)
	}
	res, err = mod.ExportedFunction("next").Call(ctx)
	if err != nil || uint32(res[0]) != 142 {
		t.Fatalf("next = %v, %v", res, err)
	}
}
