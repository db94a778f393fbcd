// Package facade is the HTTP boundary of the bridge.
//
// Handlers never call the runtime themselves. They decode the request, submit
// the proxy call to a Pool of attached workers and wait for the job's
// completion signal. Success is 200 with the result string as body; any
// bridge error is 500 with a readable message.
package facade
