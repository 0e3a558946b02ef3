package bookings

import "context"

// Repository is the booking store adapter: point reads and partial merges.
type Repository interface {
	Get(ctx context.Context, docID string) (*Booking, error)
	MergeUpdate(ctx context.Context, docID string, patch Patch) error
}
