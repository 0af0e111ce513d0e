package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tidefly/internal/types"
)

// SpotRepository reads the spots table.
type SpotRepository struct {
	db DBTX
}

// NewSpotRepository creates a new SpotRepository.
func NewSpotRepository(db DBTX) *SpotRepository {
	return &SpotRepository{db: db}
}

// GetByID retrieves a spot.
func (r *SpotRepository) GetByID(ctx context.Context, id string) (*types.Spot, error) {
	var (
		s                 types.Spot
		tz, airport, city *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, name, latitude, longitude, timezone, nearest_airport_iata, city
		 FROM spots
		 WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &tz, &airport, &city)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSpot, "spot not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve spot", err)
	}
	s.Timezone = deref(tz)
	s.NearestAirportIATA = types.NormalizeIATA(deref(airport))
	s.City = deref(city)
	return &s, nil
}

// UserRepository reads the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	var (
		u          types.User
		home, plan *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, email, home_airport, plan_tier
		 FROM users
		 WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &home, &plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	u.HomeAirport = types.NormalizeIATA(deref(home))
	u.PlanTier = types.PlanTier(deref(plan))
	if u.PlanTier == "" {
		u.PlanTier = types.PlanFree
	}
	return &u, nil
}
