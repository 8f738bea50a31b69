package models

import "time"

// DayLayout is the calendar-date format of Bip.Day.
const DayLayout = "2006-01-02"

// Coordinates are a position in decimal degrees. A bip carries both or none.
type Coordinates struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// Bip is a single check-in. It is never updated after creation.
type Bip struct {
	ID          string       `bson:"_id" json:"id"`
	Pseudo      string       `bson:"pseudo" json:"pseudo"`
	StatusCode  int          `bson:"status_code" json:"status_code"`
	Location    string       `bson:"location" json:"location"`
	Coordinates *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
	Timestamp   time.Time    `bson:"timestamp" json:"timestamp"`

	// Day is the UTC date of Timestamp, fixed at creation. Queries are scoped to it.
	Day string `bson:"day" json:"day"`

	// ConnectionID is the socket that posted the bip, if any. Attribution only.
	ConnectionID string `bson:"connection_id,omitempty" json:"connection_id,omitempty"`
}

// DayOf returns the partition key for t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// BipSummary is the public view of a Bip returned by queries.
type BipSummary struct {
	Pseudo     string    `json:"pseudo"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
}

// Summary projects b to its public view.
func (b Bip) Summary() BipSummary {
	s := BipSummary{
		Pseudo:     b.Pseudo,
		StatusCode: b.StatusCode,
		Timestamp:  b.Timestamp,
	}
	if b.Coordinates != nil {
		lat, lon := b.Coordinates.Latitude, b.Coordinates.Longitude
		s.Latitude = &lat
		s.Longitude = &lon
	}
	return s
}
