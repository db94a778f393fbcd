// Package runtime is the bridge between Go callers and the embedded engine.
//
// The host loader calls Loader.OnLoad once with the engine it created; every
// later use goes through Loader.Handle, which panics before that.
//
// Calls run inside an Attachment. Executor.Run attaches for the duration of a
// single call, Executor.RunAttached adopts an attachment held by a long-lived
// worker. Either way each run opens a frame: references created inside it
// stop resolving when it ends, and the guest heaps are reset when the
// outermost frame of an attachment ends.
//
//	loader := runtime.NewLoader(runtime.WithLogger(logger))
//	loader.OnLoad(eng)
//
//	exec := runtime.NewExecutor(loader.Handle())
//	m := runtime.NewMarshaller()
//	sig := runtime.MustParseSignature(service, "createIncident: func(title: string, description: string, priority: string) -> string")
//
//	id, err := runtime.Call(ctx, exec, func(ctx context.Context, att *runtime.Attachment) (string, error) {
//	    svc, err := att.Service(ctx, service)
//	    if err != nil {
//	        return "", err
//	    }
//	    args, err := m.EncodeArgs(ctx, svc, sig, "Disk full", "db-01", "High")
//	    if err != nil {
//	        return "", err
//	    }
//	    res, err := svc.Invoke(ctx, sig, args...)
//	    if err != nil {
//	        return "", err
//	    }
//	    return m.DecodeString(res)
//	})
//
// Strings cross the boundary NUL-terminated, so Go strings with an embedded
// NUL or invalid UTF-8 are rejected before the guest is called.
package runtime
