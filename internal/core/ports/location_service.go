package ports

import (
	"context"

	"github.com/geotask/task-service/internal/core/domain"
)

// LocationStore keeps the latest sample per user.
type LocationStore interface {
	// SaveIfNewer stores the sample only when it is newer than the stored one
	// and reports whether it did.
	SaveIfNewer(ctx context.Context, sample domain.LocationSample) (bool, error)
	// Latest returns domain.ErrNoLocation when nothing is stored.
	Latest(ctx context.Context, userID string) (*domain.LocationSample, error)
}

// PresenceStore remembers which regions a user was last seen inside.
type PresenceStore interface {
	Inside(ctx context.Context, userID string) (map[string]bool, error)
	Enter(ctx context.Context, userID, identifier string) error
	Exit(ctx context.Context, userID, identifier string) error
}

// LocationService ingests location samples.
type LocationService interface {
	Process(ctx context.Context, sample domain.LocationSample) error
	// Latest returns the newest sample if it is still fresh, else domain.ErrNoLocation.
	Latest(ctx context.Context, userID string) (*domain.LocationSample, error)
}
