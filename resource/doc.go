// Package resource implements the reference arena backing runtime object references.
//
// An Arena maps generation-checked handles to guest pointers. Entries are
// tagged with the call frame that created them; popping a frame invalidates
// every entry of that frame and deeper ones. A handle whose slot was reused
// never resolves, because the slot's generation moved on.
package resource
