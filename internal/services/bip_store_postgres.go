package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/bipbip/bips-backend/internal/models"
)

// PostgresBipStore keeps bips in the "bips" table created by
// database.InitPostgresTables.
type PostgresBipStore struct {
	db *sql.DB
}

func NewPostgresBipStore(db *sql.DB) *PostgresBipStore {
	return &PostgresBipStore{db: db}
}

func (s *PostgresBipStore) Insert(ctx context.Context, bip models.Bip) error {
	var lat, lon sql.NullFloat64
	if bip.Coordinates != nil {
		lat = sql.NullFloat64{Float64: bip.Coordinates.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: bip.Coordinates.Longitude, Valid: true}
	}
	connID := sql.NullString{String: bip.ConnectionID, Valid: bip.ConnectionID != ""}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bips (id, pseudo, status_code, location, latitude, longitude, created_at, day, connection_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		bip.ID, bip.Pseudo, bip.StatusCode, bip.Location, lat, lon, bip.Timestamp, bip.Day, connID,
	)
	if err != nil {
		return errors.Wrap(err, "insert bip")
	}
	return nil
}

func (s *PostgresBipStore) ListByDay(ctx context.Context, day string) ([]models.Bip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pseudo, status_code, location, latitude, longitude, created_at, connection_id
		 FROM bips
		 WHERE day = $1
		 ORDER BY created_at DESC`,
		day,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query bips by day")
	}
	defer rows.Close()

	bips := make([]models.Bip, 0)
	for rows.Next() {
		var (
			bip      models.Bip
			lat, lon sql.NullFloat64
			connID   sql.NullString
		)
		if err := rows.Scan(&bip.ID, &bip.Pseudo, &bip.StatusCode, &bip.Location, &lat, &lon, &bip.Timestamp, &connID); err != nil {
			return nil, errors.Wrap(err, "scan bip")
		}
		if lat.Valid && lon.Valid {
			bip.Coordinates = &models.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		bip.Timestamp = bip.Timestamp.UTC()
		bip.Day = day
		bip.ConnectionID = connID.String
		bips = append(bips, bip)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate bips")
	}
	return bips, nil
}

func (s *PostgresBipStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bips WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purge bips")
	}
	return res.RowsAffected()
}
