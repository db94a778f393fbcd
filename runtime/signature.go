package runtime

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/incident-bridge/errors"
	"github.com/wippyai/incident-bridge/wasm"
)

// Signature is the fixed dispatch key of a remote operation.
type Signature struct {
	Service    string
	Operation  string
	ParamNames []string
	Params     []wit.Type
	Results    []wit.Type
}

// name: func(a: t, b: t) -> r
var funcPattern = regexp.MustCompile(`^\s*(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+?))?\s*;?\s*$`)

// ParseSignature parses a WIT function declaration for an operation of service.
// Only primitive types are supported, with at most one result.
func ParseSignature(service, decl string) (*Signature, error) {
	if service == "" {
		return nil, errors.InvalidInput(errors.PhaseParse, "service name cannot be empty")
	}

	match := funcPattern.FindStringSubmatch(decl)
	if match == nil {
		return nil, errors.ParseFailed("signature "+decl, fmt.Errorf("not a function declaration"))
	}

	sig := &Signature{Service: service, Operation: match[1]}

	if params := strings.TrimSpace(match[2]); params != "" {
		for _, p := range strings.Split(params, ",") {
			name, typ, ok := strings.Cut(p, ":")
			if !ok {
				return nil, errors.ParseFailed("param "+strings.TrimSpace(p), fmt.Errorf("missing type"))
			}
			t, err := wit.ParseType(strings.TrimSpace(typ))
			if err != nil {
				return nil, errors.ParseFailed("param type "+typ, err)
			}
			sig.ParamNames = append(sig.ParamNames, strings.TrimSpace(name))
			sig.Params = append(sig.Params, t)
		}
	}

	if result := strings.TrimSpace(match[3]); result != "" && result != "()" {
		if strings.HasPrefix(result, "(") {
			return nil, errors.ParseFailed("result "+result, fmt.Errorf("at most one result is supported"))
		}
		t, err := wit.ParseType(result)
		if err != nil {
			return nil, errors.ParseFailed("result type "+result, err)
		}
		sig.Results = []wit.Type{t}
	}

	if _, err := sig.CoreType(); err != nil {
		return nil, err
	}
	return sig, nil
}

// MustParseSignature is ParseSignature that panics on error.
func MustParseSignature(service, decl string) *Signature {
	sig, err := ParseSignature(service, decl)
	if err != nil {
		panic(err)
	}
	return sig
}

// Descriptor renders the signature as service.op: func(...) -> r.
func (s *Signature) Descriptor() string {
	var b strings.Builder
	b.WriteString(s.Service)
	b.WriteByte('.')
	b.WriteString(s.Operation)
	b.WriteString(": func(")
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.ParamNames[i])
		b.WriteString(": ")
		b.WriteString(typeName(p))
	}
	b.WriteByte(')')
	if len(s.Results) > 0 {
		b.WriteString(" -> ")
		b.WriteString(typeName(s.Results[0]))
	}
	return b.String()
}

func (s *Signature) String() string {
	return s.Descriptor()
}

// CoreType returns the core function type the guest export must have.
func (s *Signature) CoreType() (wasm.FuncType, error) {
	var ft wasm.FuncType
	for i, p := range s.Params {
		vt, err := coreType(p)
		if err != nil {
			return wasm.FuncType{}, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Target(s.Service, s.Operation).
				Path(s.ParamNames[i]).
				Cause(err).
				Build()
		}
		ft.Params = append(ft.Params, vt)
	}
	for _, r := range s.Results {
		vt, err := coreType(r)
		if err != nil {
			return wasm.FuncType{}, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Target(s.Service, s.Operation).
				Path("result").
				Cause(err).
				Build()
		}
		ft.Results = append(ft.Results, vt)
	}
	return ft, nil
}

func coreType(t wit.Type) (wasm.ValType, error) {
	switch t.(type) {
	case wit.String, wit.Bool, wit.Char, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32:
		return wasm.ValI32, nil
	case wit.U64, wit.S64:
		return wasm.ValI64, nil
	case wit.F32:
		return wasm.ValF32, nil
	case wit.F64:
		return wasm.ValF64, nil
	default:
		return 0, fmt.Errorf("unsupported type %s", typeName(t))
	}
}

func typeName(t wit.Type) string {
	switch t.(type) {
	case wit.String:
		return "string"
	case wit.Bool:
		return "bool"
	case wit.Char:
		return "char"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case nil:
		return "void"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func sameType(a, b wit.Type) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}
