package runtime

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	incidentbridge "github.com/wippyai/incident-bridge"
	"github.com/wippyai/incident-bridge/errors"
)

// DefaultMaxStringBytes caps strings in either direction.
const DefaultMaxStringBytes = 1 << 20

// Marshaller converts between Go values and runtime values. It holds no
// per-call state and is safe for concurrent use.
type Marshaller struct {
	maxStringBytes uint32
}

type MarshallerOption func(*Marshaller)

// WithMaxStringBytes overrides DefaultMaxStringBytes; 0 keeps the default.
func WithMaxStringBytes(n uint32) MarshallerOption {
	return func(m *Marshaller) {
		if n > 0 {
			m.maxStringBytes = n
		}
	}
}

func NewMarshaller(opts ...MarshallerOption) *Marshaller {
	m := &Marshaller{maxStringBytes: DefaultMaxStringBytes}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Marshaller) MaxStringBytes() uint32 {
	return m.maxStringBytes
}

// Encode converts native into a value of svc. Strings are copied into the
// service's guest memory and come back as a reference valid for the current
// run. Supported: string, bool, sized and unsized integers, floats and Value.
func (m *Marshaller) Encode(ctx context.Context, svc *Service, native any, path ...string) (Value, error) {
	switch v := native.(type) {
	case Value:
		return v, nil
	case string:
		return m.encodeString(ctx, svc, v, path)
	case bool:
		var bits uint64
		if v {
			bits = 1
		}
		return number(wit.Bool{}, bits), nil
	case int8:
		return number(wit.S8{}, api.EncodeI32(int32(v))), nil
	case int16:
		return number(wit.S16{}, api.EncodeI32(int32(v))), nil
	case int32:
		return number(wit.S32{}, api.EncodeI32(v)), nil
	case int:
		return number(wit.S64{}, api.EncodeI64(int64(v))), nil
	case int64:
		return number(wit.S64{}, api.EncodeI64(v)), nil
	case uint8:
		return number(wit.U8{}, api.EncodeU32(uint32(v))), nil
	case uint16:
		return number(wit.U16{}, api.EncodeU32(uint32(v))), nil
	case uint32:
		return number(wit.U32{}, api.EncodeU32(v)), nil
	case uint:
		return number(wit.U64{}, uint64(v)), nil
	case uint64:
		return number(wit.U64{}, v), nil
	case float32:
		return number(wit.F32{}, api.EncodeF32(v)), nil
	case float64:
		return number(wit.F64{}, api.EncodeF64(v)), nil
	default:
		return Value{}, errors.New(errors.PhaseEncode, errors.KindMarshal).
			Path(path...).
			GoType(fmt.Sprintf("%T", native)).
			Detail("unsupported type").
			Build()
	}
}

func number(t wit.Type, bits uint64) Value {
	return Value{kind: KindNumber, typ: t, bits: bits}
}

func (m *Marshaller) encodeString(ctx context.Context, svc *Service, s string, path []string) (Value, error) {
	if svc == nil {
		return Value{}, errors.Marshal(errors.PhaseEncode, path, "string needs a target service")
	}
	if uint64(len(s)) > uint64(m.maxStringBytes) {
		return Value{}, errors.Marshal(errors.PhaseEncode, path,
			fmt.Sprintf("string of %d bytes exceeds limit %d", len(s), m.maxStringBytes))
	}

	ptr, err := incidentbridge.WriteCString(ctx, svc.instance, svc.instance, s, path...)
	if err != nil {
		return Value{}, err
	}
	ref, err := svc.att.newRef(svc, ptr)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindString, typ: wit.String{}, ref: ref}, nil
}

// EncodeArgs encodes args in declared order. Each argument's type must
// match the declared parameter type exactly.
func (m *Marshaller) EncodeArgs(ctx context.Context, svc *Service, sig *Signature, args ...any) ([]Value, error) {
	if len(args) != len(sig.Params) {
		return nil, errors.New(errors.PhaseEncode, errors.KindMarshal).
			Target(sig.Service, sig.Operation).
			Detail("expected %d arguments, got %d", len(sig.Params), len(args)).
			Build()
	}

	values := make([]Value, len(args))
	for i, arg := range args {
		path := []string{sig.Operation, sig.ParamNames[i]}
		v, err := m.Encode(ctx, svc, arg, path...)
		if err != nil {
			return nil, err
		}
		if !sameType(v.typ, sig.Params[i]) {
			return nil, errors.New(errors.PhaseEncode, errors.KindMarshal).
				Path(path...).
				GoType(fmt.Sprintf("%T", arg)).
				Detail("encodes as %s, declared %s", typeName(v.typ), typeName(sig.Params[i])).
				Build()
		}
		values[i] = v
	}
	return values, nil
}

// Decode copies v into an owned Go value: nil for void, string for strings,
// and the Go type matching the WIT type for numbers.
func (m *Marshaller) Decode(v Value) (any, error) {
	switch v.kind {
	case KindVoid:
		return nil, nil
	case KindString:
		return m.DecodeString(v)
	}

	switch v.typ.(type) {
	case wit.Bool:
		return v.bits != 0, nil
	case wit.S8:
		return int8(api.DecodeI32(v.bits)), nil
	case wit.S16:
		return int16(api.DecodeI32(v.bits)), nil
	case wit.S32:
		return api.DecodeI32(v.bits), nil
	case wit.S64:
		return int64(v.bits), nil
	case wit.U8:
		return uint8(api.DecodeU32(v.bits)), nil
	case wit.U16:
		return uint16(api.DecodeU32(v.bits)), nil
	case wit.U32:
		return api.DecodeU32(v.bits), nil
	case wit.Char:
		return rune(api.DecodeU32(v.bits)), nil
	case wit.U64:
		return v.bits, nil
	case wit.F32:
		return api.DecodeF32(v.bits), nil
	case wit.F64:
		return math.Float64frombits(v.bits), nil
	default:
		return nil, errors.Marshal(errors.PhaseDecode, nil, "unsupported type "+typeName(v.typ))
	}
}

// DecodeString copies the guest string v refers to. It fails once the run
// that produced v has ended.
func (m *Marshaller) DecodeString(v Value) (string, error) {
	if v.kind != KindString {
		return "", errors.Marshal(errors.PhaseDecode, nil, "expected string, got "+v.kind.String())
	}
	if v.ref.owner == nil {
		return "", errors.Marshal(errors.PhaseDecode, nil, "zero reference")
	}

	ptr, err := v.ref.owner.resolve(v.ref, nil, nil)
	if err != nil {
		return "", err
	}
	return incidentbridge.ReadCString(v.ref.svc.instance, ptr, m.maxStringBytes)
}
