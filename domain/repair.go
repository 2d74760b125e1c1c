package domain

import "time"

// RepairOp identifies which user-side write must be re-applied.
type RepairOp string

const (
	RepairAdd    RepairOp = "add"
	RepairRemove RepairOp = "remove"
)

// Repair describes a user-side registration write that committed on the
// event side but failed on the user side. It is queued for reconciliation.
type Repair struct {
	Op           RepairOp  `json:"op"`
	UserID       string    `json:"userId"`
	EventID      string    `json:"eventId"`
	RegisteredAt time.Time `json:"registeredAt,omitempty"`
}

// QueuedRepair is a repair message as dequeued, with the receipt needed to
// delete it after processing.
type QueuedRepair struct {
	Repair
	MessageID  string
	PopReceipt string
}
