package models

import "time"

// Connection is a live subscriber socket. Only its id matters to fan-out.
type Connection struct {
	ID          string    `bson:"_id" json:"connection_id"`
	ConnectedAt time.Time `bson:"connected_at" json:"connected_at"`
}
