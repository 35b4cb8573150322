package models

import "time"

// Event is one entry in a resource's append-only reconciliation log. Every
// attempt that fails is recorded here so nothing is silently dropped.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Attempt   int       `json:"attempt,omitempty"`
}
