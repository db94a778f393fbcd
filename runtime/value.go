package runtime

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/incident-bridge/resource"
)

// ValueKind classifies a marshalled value.
type ValueKind uint8

const (
	KindVoid ValueKind = iota
	KindString
	KindNumber
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "void"
	}
}

// Value is a value in runtime representation. A string value is a reference
// to a NUL-terminated string in guest memory; a number carries its core bits.
// The zero Value is void.
type Value struct {
	typ  wit.Type
	ref  Ref
	bits uint64
	kind ValueKind
}

func (v Value) Kind() ValueKind {
	return v.kind
}

// Type returns the WIT type of the value, nil for void.
func (v Value) Type() wit.Type {
	return v.typ
}

// Ref returns the guest reference of a string value.
func (v Value) Ref() (Ref, bool) {
	return v.ref, v.kind == KindString
}

// Ref refers to an object owned by one attachment's guest instance. It is
// only valid within the executor run that produced it.
type Ref struct {
	owner  *Attachment
	svc    *Service
	handle resource.Handle
}

// Valid reports whether the reference still resolves.
func (r Ref) Valid() bool {
	if r.owner == nil {
		return false
	}
	_, ok := r.owner.arena.Get(r.handle)
	return ok
}

// Attachment returns the owning attachment, nil for the zero Ref.
func (r Ref) Attachment() *Attachment {
	return r.owner
}
