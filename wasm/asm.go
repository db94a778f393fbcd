package wasm

import "bytes"

// Asm assembles an instruction sequence. Methods return the receiver so bodies
// read top to bottom like the text format.
type Asm struct {
	buf bytes.Buffer
}

func NewAsm() *Asm {
	return &Asm{}
}

// Op emits opcodes without immediates.
func (a *Asm) Op(ops ...byte) *Asm {
	a.buf.Write(ops)
	return a
}

func (a *Asm) I32Const(v int32) *Asm {
	a.buf.WriteByte(OpI32Const)
	WriteLEB128s(&a.buf, v)
	return a
}

func (a *Asm) LocalGet(idx uint32) *Asm { return a.index(OpLocalGet, idx) }
func (a *Asm) LocalSet(idx uint32) *Asm { return a.index(OpLocalSet, idx) }
func (a *Asm) LocalTee(idx uint32) *Asm { return a.index(OpLocalTee, idx) }

func (a *Asm) GlobalGet(idx uint32) *Asm { return a.index(OpGlobalGet, idx) }
func (a *Asm) GlobalSet(idx uint32) *Asm { return a.index(OpGlobalSet, idx) }

func (a *Asm) Call(funcIdx uint32) *Asm { return a.index(OpCall, funcIdx) }

// Br branches to the label depth levels out.
func (a *Asm) Br(depth uint32) *Asm   { return a.index(OpBr, depth) }
func (a *Asm) BrIf(depth uint32) *Asm { return a.index(OpBrIf, depth) }

// Block, Loop and If open a structured instruction with an empty block type.
func (a *Asm) Block() *Asm { return a.Op(OpBlock, BlockTypeEmpty) }
func (a *Asm) Loop() *Asm  { return a.Op(OpLoop, BlockTypeEmpty) }
func (a *Asm) If() *Asm    { return a.Op(OpIf, BlockTypeEmpty) }

// Load8U loads one byte with alignment 0 and offset 0.
func (a *Asm) Load8U() *Asm { return a.Op(OpI32Load8U, 0, 0) }

// Store8 stores one byte with alignment 0 and offset 0.
func (a *Asm) Store8() *Asm { return a.Op(OpI32Store8, 0, 0) }

func (a *Asm) MemorySize() *Asm { return a.Op(OpMemorySize, 0) }
func (a *Asm) MemoryGrow() *Asm { return a.Op(OpMemoryGrow, 0) }

// MemoryCopy copies within memory 0: [dst, src, n] -> [].
func (a *Asm) MemoryCopy() *Asm {
	a.buf.WriteByte(OpPrefixFC)
	WriteLEB128u(&a.buf, OpFCMemoryCopy)
	a.buf.WriteByte(0)
	a.buf.WriteByte(0)
	return a
}

// End closes the innermost block, or the function body.
func (a *Asm) End() *Asm { return a.Op(OpEnd) }

// Bytes returns the assembled instructions.
func (a *Asm) Bytes() []byte {
	return a.buf.Bytes()
}

func (a *Asm) index(op byte, idx uint32) *Asm {
	a.buf.WriteByte(op)
	WriteLEB128u(&a.buf, idx)
	return a
}
