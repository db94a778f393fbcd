// Package wasm encodes small core WebAssembly modules.
//
// It covers what the bridge needs to assemble guest service modules in-process:
// function types, function imports, one memory, mutable i32 globals, exports,
// code bodies and active data segments. Instruction bodies are written with Asm:
//
//	body := wasm.NewAsm().
//		LocalGet(0).
//		I32Const(1).
//		Op(wasm.OpI32Add).
//		End()
//
// Encode emits sections in the order required by the binary format.
package wasm
