package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/incident-bridge/engine"
	"github.com/wippyai/incident-bridge/errors"
)

// Service is an attachment's instance of a registered service module.
type Service struct {
	att      *Attachment
	def      *engine.Service
	instance *engine.Instance
}

func (s *Service) Name() string {
	return s.def.Name()
}

// Operations lists the operations the service exports.
func (s *Service) Operations() []string {
	return s.def.Operations()
}

func (s *Service) Attachment() *Attachment {
	return s.att
}

// Invoke calls the operation sig describes once, synchronously. A guest
// exception or trap becomes a remote invocation error; a string result is
// returned as a reference valid until the current run ends.
func (s *Service) Invoke(ctx context.Context, sig *Signature, args ...Value) (Value, error) {
	if sig.Service != s.Name() {
		return Value{}, errors.New(errors.PhaseResolve, errors.KindServiceNotFound).
			Target(sig.Service, sig.Operation).
			Detail("signature targets %q, invoked on %q", sig.Service, s.Name()).
			Build()
	}

	want, err := sig.CoreType()
	if err != nil {
		return Value{}, err
	}
	got, ok := s.def.Export(sig.Operation)
	if !ok || sig.Operation == engine.ExportAlloc || sig.Operation == engine.ExportReset {
		return Value{}, errors.ServiceNotFound(sig.Service, sig.Operation)
	}
	if !got.Equal(want) {
		return Value{}, errors.SignatureMismatch(sig.Service, sig.Operation, want.String(), got.String())
	}

	raw, err := s.lower(sig, args)
	if err != nil {
		return Value{}, err
	}

	results, err := s.instance.Call(ctx, sig.Operation, raw...)
	if err != nil {
		var exc *engine.Exception
		if errors.As(err, &exc) {
			return Value{}, errors.RemoteInvocation(sig.Service, sig.Operation, exc.Message, err)
		}
		return Value{}, errors.RemoteInvocation(sig.Service, sig.Operation, "guest trapped", err)
	}

	s.att.handle.logger.Debug("invoked",
		zap.Uint64("attachment", s.att.id),
		zap.String("operation", sig.Descriptor()))

	if len(sig.Results) == 0 {
		return Value{}, nil
	}
	return s.lift(sig, results[0])
}

func (s *Service) lower(sig *Signature, args []Value) ([]uint64, error) {
	if len(args) != len(sig.Params) {
		return nil, errors.New(errors.PhaseEncode, errors.KindMarshal).
			Target(sig.Service, sig.Operation).
			Detail("expected %d arguments, got %d", len(sig.Params), len(args)).
			Build()
	}

	raw := make([]uint64, len(args))
	for i, arg := range args {
		path := []string{sig.Operation, sig.ParamNames[i]}
		if arg.kind == KindVoid {
			return nil, errors.Marshal(errors.PhaseEncode, path, "void argument")
		}
		if !sameType(arg.typ, sig.Params[i]) {
			return nil, errors.Marshal(errors.PhaseEncode, path,
				fmt.Sprintf("argument is %s, declared %s", typeName(arg.typ), typeName(sig.Params[i])))
		}

		if arg.kind == KindString {
			ptr, err := s.att.resolve(arg.ref, s, path)
			if err != nil {
				return nil, err
			}
			raw[i] = api.EncodeU32(ptr)
			continue
		}
		raw[i] = arg.bits
	}
	return raw, nil
}

func (s *Service) lift(sig *Signature, bits uint64) (Value, error) {
	typ := sig.Results[0]
	if _, ok := typ.(wit.String); !ok {
		return number(typ, bits), nil
	}

	ptr := api.DecodeU32(bits)
	if ptr == 0 {
		return Value{}, errors.New(errors.PhaseDecode, errors.KindMarshal).
			Target(sig.Service, sig.Operation).
			Path("result").
			Detail("null string pointer").
			Build()
	}
	ref, err := s.att.newRef(s, ptr)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindString, typ: typ, ref: ref}, nil
}
