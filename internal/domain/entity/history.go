package entity

import "time"

// Transaction is one append-only audit entry of a workflow move.
// ForwardedByRoleID is the performer's role at the time of the move.
type Transaction struct {
	ID                int64     `json:"id"`
	App               AppRef    `json:"application"`
	PerformedBy       int64     `json:"performed_by"`
	ForwardedByRoleID *int64    `json:"forwarded_by_role_id"`
	ForwardedToRoleID *int64    `json:"forwarded_to_role_id"`
	StageID           *int64    `json:"stage_id"`
	Remarks           string    `json:"remarks"`
	Timestamp         time.Time `json:"timestamp"`
}

// Objection is a complaint raised against one field of an application
type Objection struct {
	ID         int64      `json:"id"`
	App        AppRef     `json:"application"`
	FieldName  string     `json:"field_name"`
	Remarks    string     `json:"remarks"`
	RaisedBy   int64      `json:"raised_by"`
	StageID    *int64     `json:"stage_id"`
	IsResolved bool       `json:"is_resolved"`
	RaisedOn   time.Time  `json:"raised_on"`
	ResolvedOn *time.Time `json:"resolved_on,omitempty"`
}

// ObjectionItem is a caller-supplied objection request
type ObjectionItem struct {
	FieldName string `json:"field" binding:"required"`
	Remarks   string `json:"remarks"`
}
