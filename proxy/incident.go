package proxy

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/incident-bridge/errors"
	"github.com/wippyai/incident-bridge/runtime"
)

// ServiceName is the fixed name the incident service is registered under.
const ServiceName = "com/incident/jni/IncidentServiceFacade"

const instrumentation = "github.com/wippyai/incident-bridge/proxy"

var (
	SigCreateIncident = runtime.MustParseSignature(ServiceName,
		"createIncident: func(title: string, description: string, priority: string) -> string")
	SigChangeStatus = runtime.MustParseSignature(ServiceName,
		"changeStatus: func(id: string, status: string, assignee: string, comment: string) -> string")
)

// IncidentService is the typed proxy for the remote incident service.
// Safe for concurrent use.
type IncidentService struct {
	exec      *runtime.Executor
	marshal   *runtime.Marshaller
	logger    *zap.Logger
	tracer    trace.Tracer
	calls     metric.Int64Counter
	durations metric.Float64Histogram
}

type Option func(*config)

type config struct {
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) { c.meterProvider = mp }
}

func NewIncidentService(exec *runtime.Executor, m *runtime.Marshaller, opts ...Option) (*IncidentService, error) {
	cfg := config{
		logger:         zap.NewNop(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if m == nil {
		m = runtime.NewMarshaller()
	}

	meter := cfg.meterProvider.Meter(instrumentation)
	calls, err := meter.Int64Counter("bridge.calls",
		metric.WithDescription("Remote operation invocations"))
	if err != nil {
		return nil, err
	}
	durations, err := meter.Float64Histogram("bridge.call.duration",
		metric.WithDescription("Remote operation latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &IncidentService{
		exec:      exec,
		marshal:   m,
		logger:    cfg.logger,
		tracer:    cfg.tracerProvider.Tracer(instrumentation),
		calls:     calls,
		durations: durations,
	}, nil
}

// CreateIncident returns the new incident's identifier.
func (s *IncidentService) CreateIncident(ctx context.Context, title, description, priority string) (string, error) {
	return s.Invoke(ctx, SigCreateIncident, title, description, priority)
}

// ChangeStatus returns the status the incident now has.
func (s *IncidentService) ChangeStatus(ctx context.Context, id, status, assignee, comment string) (string, error) {
	return s.Invoke(ctx, SigChangeStatus, id, status, assignee, comment)
}

// Operations returns the signatures this proxy can invoke.
func (s *IncidentService) Operations() []*runtime.Signature {
	return []*runtime.Signature{SigCreateIncident, SigChangeStatus}
}

// Invoke calls a string-typed operation of the service sig targets.
func (s *IncidentService) Invoke(ctx context.Context, sig *runtime.Signature, args ...string) (result string, err error) {
	ctx, span := s.tracer.Start(ctx, sig.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bridge.service", sig.Service),
			attribute.String("bridge.operation", sig.Operation),
		))
	start := time.Now()

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(errors.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		attrs := metric.WithAttributes(
			attribute.String("operation", sig.Operation),
			attribute.String("outcome", outcome),
		)
		s.calls.Add(ctx, 1, attrs)
		s.durations.Record(ctx, time.Since(start).Seconds(), attrs)
		span.End()

		s.logger.Debug("remote call",
			zap.String("operation", sig.Operation),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}()

	native := make([]any, len(args))
	for i, a := range args {
		native[i] = a
	}

	return runtime.Call(ctx, s.exec, func(ctx context.Context, att *runtime.Attachment) (string, error) {
		svc, err := att.Service(ctx, sig.Service)
		if err != nil {
			return "", err
		}
		values, err := s.marshal.EncodeArgs(ctx, svc, sig, native...)
		if err != nil {
			return "", err
		}
		res, err := svc.Invoke(ctx, sig, values...)
		if err != nil {
			return "", err
		}
		return s.marshal.DecodeString(res)
	})
}
