package facade

import (
	"context"
)

// Incidents is the remote incident service contract the facade consumes.
// *proxy.IncidentService implements it.
type Incidents interface {
	CreateIncident(ctx context.Context, title, description, priority string) (string, error)
	ChangeStatus(ctx context.Context, id, status, assignee, comment string) (string, error)
}

// Facade dispatches incident operations onto a worker pool.
type Facade struct {
	pool      *Pool
	incidents Incidents
}

func New(pool *Pool, incidents Incidents) *Facade {
	return &Facade{pool: pool, incidents: incidents}
}

// CreateRecord creates an incident and returns its identifier.
func (f *Facade) CreateRecord(ctx context.Context, title, description, priority string) (string, error) {
	return Do(ctx, f.pool, func(ctx context.Context) (string, error) {
		return f.incidents.CreateIncident(ctx, title, description, priority)
	})
}

// ChangeStatus changes an incident's status and returns the new status.
func (f *Facade) ChangeStatus(ctx context.Context, id, status, assignee, comment string) (string, error) {
	return Do(ctx, f.pool, func(ctx context.Context) (string, error) {
		return f.incidents.ChangeStatus(ctx, id, status, assignee, comment)
	})
}

func (f *Facade) Pool() *Pool {
	return f.pool
}
