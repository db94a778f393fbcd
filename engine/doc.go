// Package engine hosts the embedded WebAssembly runtime.
//
// An Engine owns one wazero runtime, the bridge host module and the compiled
// service modules registered under their service names. Instances are
// created per attachment and are not safe for concurrent use.
//
// # Guest ABI
//
//	export memory            linear memory 0
//	export alloc(i32) -> i32 allocate n bytes, return pointer
//	export reset()           free every allocation
//	import bridge.throw(i32)      raise the NUL-terminated message at ptr
//	import bridge.sequence() -> i32  next value of the engine-wide sequence
//
// A guest raises by calling bridge.throw; the host unwinds the guest right
// there. Instance.Call reports that as *Exception; any other failure is a *Trap.
package engine
