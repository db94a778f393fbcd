package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/incident-bridge/errors"
	"github.com/wippyai/incident-bridge/wasm"
)

const (
	HostModule   = "bridge"
	HostThrow    = "throw"
	HostSequence = "sequence"

	ExportMemory = "memory"
	ExportAlloc  = "alloc"
	ExportReset  = "reset"
)

// DefaultMaxMessageBytes caps messages passed to bridge.throw.
const DefaultMaxMessageBytes = 4096

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// MaxMessageBytes caps the length of thrown messages; 0 means DefaultMaxMessageBytes.
	MaxMessageBytes uint32
}

// Engine is the embedded runtime: one wazero runtime plus registered services.
type Engine struct {
	runtime  wazero.Runtime
	services map[string]*Service
	seq      atomic.Uint32
	closed   atomic.Bool
	maxMsg   uint32
	mu       sync.RWMutex
}

// Service is a compiled guest module registered under a service name.
type Service struct {
	name     string
	compiled wazero.CompiledModule
	exports  map[string]wasm.FuncType
}

// New creates the runtime and instantiates the bridge host module.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	maxMsg := uint32(DefaultMaxMessageBytes)

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.MaxMessageBytes > 0 {
			maxMsg = cfg.MaxMessageBytes
		}
	}

	e := &Engine{
		runtime:  wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		services: make(map[string]*Service),
		maxMsg:   maxMsg,
	}

	if err := e.instantiateHost(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidData).
			Detail("instantiate host module %q", HostModule).
			Cause(err).
			Build()
	}

	Logger().Debug("engine created", zap.Uint32("memory_limit_pages", limitPages(cfg)))
	return e, nil
}

func limitPages(cfg *Config) uint32 {
	if cfg == nil {
		return 0
	}
	return cfg.MemoryLimitPages
}

// Register compiles wasmBytes and makes it resolvable under name.
// The module must export memory, alloc and reset, and may import only
// functions of the bridge host module.
func (e *Engine) Register(ctx context.Context, name string, wasmBytes []byte) (*Service, error) {
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "service name cannot be empty")
	}
	if e.closed.Load() {
		return nil, errors.Load("register "+name, fmt.Errorf("engine closed"))
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile "+name, err)
	}

	svc, err := newService(name, compiled)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	e.mu.Lock()
	old := e.services[name]
	e.services[name] = svc
	e.mu.Unlock()

	if old != nil {
		// Live instances keep their own reference to the old module.
		_ = old.compiled.Close(ctx)
	}

	Logger().Debug("service registered",
		zap.String("service", name),
		zap.Strings("operations", svc.Operations()))
	return svc, nil
}

func newService(name string, compiled wazero.CompiledModule) (*Service, error) {
	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		return nil, errors.Load(name, fmt.Errorf("missing %q export", ExportMemory))
	}

	for _, def := range compiled.ImportedFunctions() {
		mod, fn, _ := def.Import()
		if mod != HostModule || (fn != HostThrow && fn != HostSequence) {
			return nil, errors.Load(name, fmt.Errorf("unsupported import %s.%s", mod, fn))
		}
	}

	exports := make(map[string]wasm.FuncType)
	for exportName, def := range compiled.ExportedFunctions() {
		exports[exportName] = funcType(def)
	}

	want := map[string]wasm.FuncType{
		ExportAlloc: {Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		ExportReset: {},
	}
	for exportName, ft := range want {
		got, ok := exports[exportName]
		if !ok {
			return nil, errors.Load(name, fmt.Errorf("missing %q export", exportName))
		}
		if !got.Equal(ft) {
			return nil, errors.Load(name, fmt.Errorf("export %q has type %s, want %s", exportName, got, ft))
		}
	}

	return &Service{name: name, compiled: compiled, exports: exports}, nil
}

func funcType(def api.FunctionDefinition) wasm.FuncType {
	var ft wasm.FuncType
	for _, p := range def.ParamTypes() {
		ft.Params = append(ft.Params, wasm.ValType(p))
	}
	for _, r := range def.ResultTypes() {
		ft.Results = append(ft.Results, wasm.ValType(r))
	}
	return ft
}

// Lookup returns the service registered under name.
func (e *Engine) Lookup(name string) (*Service, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.services[name]
	return s, ok
}

// Services returns the registered service names, sorted.
func (e *Engine) Services() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.services))
	for name := range e.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate creates a fresh, anonymous instance of s.
func (e *Engine) Instantiate(ctx context.Context, s *Service) (*Instance, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("engine closed")
	}

	mod, err := e.runtime.InstantiateModule(ctx, s.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", s.name, err)
	}

	return &Instance{
		service: s,
		module:  mod,
		alloc:   mod.ExportedFunction(ExportAlloc),
		reset:   mod.ExportedFunction(ExportReset),
	}, nil
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// Close releases the runtime and every instance created from it.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	Logger().Debug("engine closing")
	return e.runtime.Close(ctx)
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// Export returns the core type of an exported function.
func (s *Service) Export(name string) (wasm.FuncType, bool) {
	ft, ok := s.exports[name]
	return ft, ok
}

// Operations returns the exported functions other than the ABI exports, sorted.
func (s *Service) Operations() []string {
	ops := make([]string, 0, len(s.exports))
	for name := range s.exports {
		if name == ExportAlloc || name == ExportReset {
			continue
		}
		ops = append(ops, name)
	}
	sort.Strings(ops)
	return ops
}
