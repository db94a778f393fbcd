// Package guest assembles the built-in incident service module.
//
// The module follows the bridge guest ABI: it exports memory, alloc and reset,
// imports bridge.throw and bridge.sequence, and keeps strings NUL-terminated.
//
//	createIncident(title, description, priority) -> "INC-<n>"
//	changeStatus(id, status, assignee, comment)  -> status
//
// Empty titles and statuses are raised as remote errors.
package guest
