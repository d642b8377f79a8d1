package domain

import "database/sql"

// Row is one record read for bulk field mutation. Values are index-aligned
// with the column list of the table being processed.
type Row struct {
	Key    WorkUnit
	Values []sql.NullString
}

// SlotState tracks the lifecycle of one worker slot.
type SlotState string

const (
	SlotIdle       SlotState = "idle"
	SlotRunning    SlotState = "running"
	SlotRespawning SlotState = "respawning" // between two iterations that found work
	SlotTerminated SlotState = "terminated"
)
