package domain

import "context"

// CanvasStore persists canvas objects and connectors. Every operation is a
// single row-level statement, transactional on its own; object ids are
// engine-generated UUIDs so each write is independently idempotent-safe.
type CanvasStore interface {
	ListObjects(ctx context.Context, canvasID string) ([]Object, error)
	GetObject(ctx context.Context, canvasID, objectID string) (*Object, error)
	InsertObject(ctx context.Context, obj *Object) error
	UpdateObject(ctx context.Context, obj *Object) error
	DeleteObject(ctx context.Context, canvasID, objectID string) error

	ListConnectors(ctx context.Context, canvasID string) ([]Connector, error)
	InsertConnector(ctx context.Context, conn *Connector) error
	DeleteConnector(ctx context.Context, canvasID, connectorID string) error
	// DeleteConnectorsForObject removes every connector touching the given
	// object, implementing the endpoint cascade.
	DeleteConnectorsForObject(ctx context.Context, canvasID, objectID string) error
}

// JobStore persists command jobs and canvas version stamps. The engine treats
// failures here as best-effort: bookkeeping never blocks command execution.
type JobStore interface {
	LoadJob(ctx context.Context, canvasID, jobID string) (*Job, error)
	SaveJob(ctx context.Context, job *Job) error
	// ListStaleJobs returns non-terminal jobs not updated within maxAge
	// seconds, for the maintenance sweep.
	ListStaleJobs(ctx context.Context, maxAgeSeconds int64) ([]Job, error)

	GetVersion(ctx context.Context, canvasID string) (int64, error)
	IncrementVersion(ctx context.Context, canvasID string) (int64, error)
}
