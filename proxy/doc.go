// Package proxy exposes the remote incident service as plain Go methods.
//
// Each method resolves the service by its fixed name, encodes the arguments
// in declared order, invokes the operation once through a runtime.Executor
// and decodes the single string result. Errors are the bridge taxonomy from
// package errors, unchanged.
package proxy
