package wasm

import (
	"bytes"
	"encoding/binary"
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures have identical params and results.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// String renders the signature as "(i32, i32) -> i32".
func (f FuncType) String() string {
	var b bytes.Buffer
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> (")
	for i, r := range f.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Import is a function import.
type Import struct {
	Module  string
	Name    string
	TypeIdx uint32
}

// Export names a function, memory or global.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Memory describes the single linear memory.
type Memory struct {
	Min uint32
	Max *uint32
}

// Global is a mutable i32 global with a constant initializer.
type Global struct {
	Init int32
}

// Func is a defined function: its type index, extra locals and body.
// Body must end with OpEnd.
type Func struct {
	TypeIdx uint32
	Locals  []ValType
	Body    []byte
}

// Data is an active data segment for memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module is an encodable core module.
// Function indices count imports first, then Funcs in order.
type Module struct {
	Memory  *Memory
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	Globals []Global
	Exports []Export
	Data    []Data
}

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	var w bytes.Buffer

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], Version)
	w.Write(hdr[:])

	if len(m.Types) > 0 {
		var sec bytes.Buffer
		writeVec(&sec, len(m.Types), func(i int) {
			sec.WriteByte(FuncTypeByte)
			writeValTypes(&sec, m.Types[i].Params)
			writeValTypes(&sec, m.Types[i].Results)
		})
		writeSection(&w, SectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		var sec bytes.Buffer
		writeVec(&sec, len(m.Imports), func(i int) {
			imp := m.Imports[i]
			writeName(&sec, imp.Module)
			writeName(&sec, imp.Name)
			sec.WriteByte(KindFunc)
			WriteLEB128u(&sec, imp.TypeIdx)
		})
		writeSection(&w, SectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		var sec bytes.Buffer
		writeVec(&sec, len(m.Funcs), func(i int) {
			WriteLEB128u(&sec, m.Funcs[i].TypeIdx)
		})
		writeSection(&w, SectionFunction, sec.Bytes())
	}

	if m.Memory != nil {
		var sec bytes.Buffer
		WriteLEB128u(&sec, 1)
		if m.Memory.Max != nil {
			sec.WriteByte(limitsHasMax)
			WriteLEB128u(&sec, m.Memory.Min)
			WriteLEB128u(&sec, *m.Memory.Max)
		} else {
			sec.WriteByte(limitsNoMax)
			WriteLEB128u(&sec, m.Memory.Min)
		}
		writeSection(&w, SectionMemory, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		var sec bytes.Buffer
		writeVec(&sec, len(m.Globals), func(i int) {
			sec.WriteByte(byte(ValI32))
			sec.WriteByte(globalMutable)
			sec.WriteByte(OpI32Const)
			WriteLEB128s(&sec, m.Globals[i].Init)
			sec.WriteByte(OpEnd)
		})
		writeSection(&w, SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		var sec bytes.Buffer
		writeVec(&sec, len(m.Exports), func(i int) {
			exp := m.Exports[i]
			writeName(&sec, exp.Name)
			sec.WriteByte(exp.Kind)
			WriteLEB128u(&sec, exp.Idx)
		})
		writeSection(&w, SectionExport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		var sec bytes.Buffer
		writeVec(&sec, len(m.Funcs), func(i int) {
			body := encodeBody(m.Funcs[i])
			WriteLEB128u(&sec, uint32(len(body)))
			sec.Write(body)
		})
		writeSection(&w, SectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		var sec bytes.Buffer
		writeVec(&sec, len(m.Data), func(i int) {
			d := m.Data[i]
			WriteLEB128u(&sec, 0) // active, memory 0
			sec.WriteByte(OpI32Const)
			WriteLEB128s(&sec, d.Offset)
			sec.WriteByte(OpEnd)
			WriteLEB128u(&sec, uint32(len(d.Bytes)))
			sec.Write(d.Bytes)
		})
		writeSection(&w, SectionData, sec.Bytes())
	}

	return w.Bytes()
}

// encodeBody writes locals as one run per value type.
func encodeBody(f Func) []byte {
	var b bytes.Buffer

	type run struct {
		t ValType
		n uint32
	}
	var runs []run
	for _, l := range f.Locals {
		if len(runs) > 0 && runs[len(runs)-1].t == l {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{t: l, n: 1})
	}

	writeVec(&b, len(runs), func(i int) {
		WriteLEB128u(&b, runs[i].n)
		b.WriteByte(byte(runs[i].t))
	})
	b.Write(f.Body)
	return b.Bytes()
}

func writeValTypes(w *bytes.Buffer, types []ValType) {
	writeVec(w, len(types), func(i int) {
		w.WriteByte(byte(types[i]))
	})
}

func writeSection(w *bytes.Buffer, id byte, content []byte) {
	w.WriteByte(id)
	WriteLEB128u(w, uint32(len(content)))
	w.Write(content)
}
