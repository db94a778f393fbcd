// Package incidentbridge embeds a WebAssembly runtime in a Go host and exposes
// a call-style interface to operations implemented by guest service modules.
//
// # Architecture Overview
//
//	incidentbridge/      Root package with the guest Memory and Allocator interfaces
//	├── runtime/         Bridge core: loader, handle, attachments, executor, marshaller
//	├── engine/          wazero integration: service modules, instances, host imports
//	├── resource/        Generation-checked reference arena
//	├── proxy/           Typed remote service operations (createIncident, changeStatus)
//	├── facade/          HTTP handlers and the worker pool they dispatch onto
//	├── guest/           Built-in incident service module
//	├── wasm/            Core module encoder used by guest
//	├── config/          YAML/TOML configuration
//	└── errors/          Structured error taxonomy
//
// # Quick Start
//
//	eng, err := engine.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	if _, err := eng.Register(ctx, proxy.ServiceName, guest.IncidentService()); err != nil {
//	    log.Fatal(err)
//	}
//
//	loader := runtime.NewLoader()
//	loader.OnLoad(eng)
//
//	exec := runtime.NewExecutor(loader.Handle())
//	incidents, err := proxy.NewIncidentService(exec, runtime.NewMarshaller())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	id, err := incidents.CreateIncident(ctx, "Disk full", "db-01 at 98%", "High")
//	fmt.Println(id) // "INC-1"
//
// # Guest ABI
//
// A service module exports memory, alloc(size) -> ptr and reset(). Strings
// cross the boundary as NUL-terminated UTF-8 in guest memory. A guest raises
// an error by calling bridge.throw(msg), which never returns.
package incidentbridge
