package models

import "time"

// Change operations carried by ChangeEvent
const (
	ChangeInsert  = "insert"
	ChangeDelete  = "delete"
	ChangeMove    = "move"
	ChangeCheckin = "checkin"
)

// ChangeEvent describes a mutation of programmed production
type ChangeEvent struct {
	ID    string    `json:"id"`
	Table string    `json:"table"`
	Op    string    `json:"op"`
	Lote  string    `json:"lote,omitempty"`
	Name  string    `json:"name,omitempty"`
	Codes []string  `json:"codes,omitempty"`
	At    time.Time `json:"at"`
}
