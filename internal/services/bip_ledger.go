package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bipbip/bips-backend/internal/metrics"
	"github.com/bipbip/bips-backend/internal/models"
	"github.com/bipbip/bips-backend/pkg/geo"
)

// BipStore persists bips. ListByDay returns the bips of one UTC day, newest first.
type BipStore interface {
	Insert(ctx context.Context, bip models.Bip) error
	ListByDay(ctx context.Context, day string) ([]models.Bip, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaxFieldLength bounds pseudo, location and connection ids, in characters.
const MaxFieldLength = 255

// NewBip is a create request. Optional values are pointers so that "absent"
// differs from zero.
type NewBip struct {
	Pseudo       string
	StatusCode   *int
	Location     string
	Latitude     *float64
	Longitude    *float64
	ConnectionID string
}

// BipQuery selects today's bips posted at Location or around the coordinates.
type BipQuery struct {
	Location  string
	Latitude  *float64
	Longitude *float64
}

// BipLedger is the only writer of bips.
type BipLedger struct {
	store   BipStore
	matcher geo.Matcher
	logger  *zap.Logger
	metrics *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// NewBipLedger returns a ledger writing to store and matching with matcher.
func NewBipLedger(store BipStore, matcher geo.Matcher, logger *zap.Logger, m *metrics.Metrics) *BipLedger {
	return &BipLedger{
		store:   store,
		matcher: matcher,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Add validates and stores a new bip and returns its id.
func (l *BipLedger) Add(ctx context.Context, in NewBip) (string, error) {
	bip, err := l.build(in)
	if err != nil {
		return "", err
	}

	if err := l.store.Insert(ctx, bip); err != nil {
		return "", storageError("insert bip", err)
	}

	l.metrics.BipCreated()
	l.logger.Debug("bip stacked",
		zap.String("id", bip.ID),
		zap.String("location", bip.Location),
		zap.Bool("geolocated", bip.Coordinates != nil),
	)
	return bip.ID, nil
}

func (l *BipLedger) build(in NewBip) (models.Bip, error) {
	pseudo := strings.TrimSpace(in.Pseudo)
	location := strings.TrimSpace(in.Location)
	connectionID := strings.TrimSpace(in.ConnectionID)

	switch {
	case pseudo == "":
		return models.Bip{}, validationError("pseudo is required")
	case in.StatusCode == nil:
		return models.Bip{}, validationError("status_code is required")
	case location == "":
		return models.Bip{}, validationError("location is required")
	case utf8.RuneCountInString(pseudo) > MaxFieldLength:
		return models.Bip{}, validationError("pseudo must be at most %d characters", MaxFieldLength)
	case utf8.RuneCountInString(location) > MaxFieldLength:
		return models.Bip{}, validationError("location must be at most %d characters", MaxFieldLength)
	case utf8.RuneCountInString(connectionID) > MaxFieldLength:
		return models.Bip{}, validationError("connection_id must be at most %d characters", MaxFieldLength)
	case (in.Latitude == nil) != (in.Longitude == nil):
		return models.Bip{}, validationError("latitude and longitude must be given together")
	}

	var coords *models.Coordinates
	if in.Latitude != nil {
		lat, lon := *in.Latitude, *in.Longitude
		if err := checkCoordinates(in.Latitude, in.Longitude); err != nil {
			return models.Bip{}, err
		}
		coords = &models.Coordinates{Latitude: lat, Longitude: lon}
	}

	ts := l.now().UTC()
	return models.Bip{
		ID:           l.newID(),
		Pseudo:       pseudo,
		StatusCode:   *in.StatusCode,
		Location:     location,
		Coordinates:  coords,
		Timestamp:    ts,
		Day:          models.DayOf(ts),
		ConnectionID: connectionID,
	}, nil
}

// checkCoordinates rejects non-finite or out-of-range values. Nil values pass.
func checkCoordinates(lat, lon *float64) error {
	if lat != nil && !inRange(*lat, 90) {
		return validationError("latitude %v out of range", *lat)
	}
	if lon != nil && !inRange(*lon, 180) {
		return validationError("longitude %v out of range", *lon)
	}
	return nil
}

// inRange is false for NaN, which fails every comparison.
func inRange(v, limit float64) bool {
	return !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// Query returns today's bips matching q, newest first. An empty slice is a
// normal result. Coordinates are checked like on Add.
func (l *BipLedger) Query(ctx context.Context, q BipQuery) ([]models.BipSummary, error) {
	if err := checkCoordinates(q.Latitude, q.Longitude); err != nil {
		return nil, err
	}
	today := models.DayOf(l.now())

	bips, err := l.store.ListByDay(ctx, today)
	if err != nil {
		return nil, storageError("list bips", err)
	}
	l.metrics.BipQueried()

	query := geo.Query{Location: q.Location}
	// partial coordinates are ignored, the query is then by name only
	if q.Latitude != nil && q.Longitude != nil {
		query.Point = &geo.Point{Lat: *q.Latitude, Lon: *q.Longitude}
	}

	seen := make(map[string]struct{}, len(bips))
	matched := make([]models.Bip, 0)
	for _, bip := range bips {
		if _, dup := seen[bip.ID]; dup {
			continue
		}
		if !l.matcher.Matches(query, candidate(bip)) {
			continue
		}
		seen[bip.ID] = struct{}{}
		matched = append(matched, bip)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	out := make([]models.BipSummary, 0, len(matched))
	for _, bip := range matched {
		out = append(out, bip.Summary())
	}
	return out, nil
}

func candidate(bip models.Bip) geo.Candidate {
	c := geo.Candidate{Location: bip.Location}
	if bip.Coordinates != nil {
		c.Point = &geo.Point{Lat: bip.Coordinates.Latitude, Lon: bip.Coordinates.Longitude}
	}
	return c
}

// StartBipRetention purges bips older than retention every interval until ctx
// is done. Day scoping already hides them from queries; this only bounds growth.
func StartBipRetention(ctx context.Context, store BipStore, retention, interval time.Duration, logger *zap.Logger) {
	if retention <= 0 {
		logger.Info("bip retention disabled")
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	purge := func() {
		purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		cutoff := time.Now().UTC().Add(-retention)
		n, err := store.PurgeBefore(purgeCtx, cutoff)
		if err != nil {
			logger.Warn("bip retention purge failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("purged old bips", zap.Int64("count", n), zap.Time("cutoff", cutoff))
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		purge()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purge()
			}
		}
	}()
}
