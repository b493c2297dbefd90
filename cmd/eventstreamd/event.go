package main

import "time"

// Event is the payload carried by the stream.
type Event struct {
	Seq     int64     `json:"seq,omitempty"`
	Message string    `json:"message" validate:"required"`
	At      time.Time `json:"at"`
}
