package storage

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/swiftride/dispatch/internal/domain/trip"
	"github.com/swiftride/dispatch/pkg/logger"
)

// PostgresStore persists trips in a single table using upsert writes, so
// Save is idempotent across dispatch retries.
type PostgresStore struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewPostgresStore(db *sql.DB, log *logger.Logger) *PostgresStore {
	if log == nil {
		log = logger.Nop()
	}
	return &PostgresStore{db: db, logger: log}
}

const tripColumns = `id, client_id, driver_id, status, vehicle_type,
	pickup_latitude, pickup_longitude, dropoff_latitude, dropoff_longitude,
	pickup_address, dropoff_address, language, sos_triggered,
	final_distance_km, final_duration_minutes, final_fare,
	cancellation_reason, requested_at, matched_at, started_at,
	completed_at, cancelled_at`

func (s *PostgresStore) Save(ctx context.Context, t *trip.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			status = EXCLUDED.status,
			sos_triggered = EXCLUDED.sos_triggered,
			final_distance_km = EXCLUDED.final_distance_km,
			final_duration_minutes = EXCLUDED.final_duration_minutes,
			final_fare = EXCLUDED.final_fare,
			cancellation_reason = EXCLUDED.cancellation_reason,
			matched_at = EXCLUDED.matched_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			cancelled_at = EXCLUDED.cancelled_at`

	var driverID interface{}
	if t.DriverID != nil {
		driverID = t.DriverID.String()
	}
	reason := sql.NullString{String: t.CancellationReason, Valid: t.CancellationReason != ""}

	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.ClientID, driverID, t.Status, t.VehicleType,
		t.PickupLatitude, t.PickupLongitude, t.DropoffLatitude, t.DropoffLongitude,
		t.PickupAddress, t.DropoffAddress, t.Language, t.SOSTriggered,
		t.FinalDistanceKM, t.FinalDurationMin, t.FinalFare,
		reason, t.RequestedAt, t.MatchedAt, t.StartedAt,
		t.CompletedAt, t.CancelledAt,
	)
	if err != nil {
		s.logger.Error("failed to save trip",
			logger.String("trip_id", t.ID.String()),
			logger.Err(err))
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*trip.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)
	return scanTrip(row)
}

func (s *PostgresStore) ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]*trip.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips
		WHERE client_id = $1 ORDER BY requested_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*trip.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountCompletedPair(ctx context.Context, clientID, driverID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM trips
		WHERE client_id = $1 AND driver_id = $2 AND status = $3`

	var n int
	err := s.db.QueryRowContext(ctx, query, clientID, driverID, trip.StatusCompleted).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row rowScanner) (*trip.Trip, error) {
	var t trip.Trip
	var driverID sql.NullString
	var reason sql.NullString

	err := row.Scan(
		&t.ID, &t.ClientID, &driverID, &t.Status, &t.VehicleType,
		&t.PickupLatitude, &t.PickupLongitude, &t.DropoffLatitude, &t.DropoffLongitude,
		&t.PickupAddress, &t.DropoffAddress, &t.Language, &t.SOSTriggered,
		&t.FinalDistanceKM, &t.FinalDurationMin, &t.FinalFare,
		&reason, &t.RequestedAt, &t.MatchedAt, &t.StartedAt,
		&t.CompletedAt, &t.CancelledAt,
	)
	if err == sql.ErrNoRows {
		return nil, trip.ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		id, err := uuid.Parse(driverID.String)
		if err != nil {
			return nil, err
		}
		t.DriverID = &id
	}
	t.CancellationReason = reason.String
	return &t, nil
}
