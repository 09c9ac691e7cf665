package audit

import "context"

// Store persists audit records.
// Interface owned by domain per hexagonal architecture.
type Store interface {
	// Append stores audit records.
	Append(ctx context.Context, records ...Record) error

	// Close releases resources.
	Close() error
}
