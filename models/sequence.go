package models

import (
	"time"
)

// Sequence statuses
const (
	SequenceStatusPending    = "pending"
	SequenceStatusProcessing = "processing"
)

// Node kinds for the explicit node payload
const (
	NodeKindLeadSource = "lead_source"
	NodeKindColdEmail  = "cold_email"
	NodeKindWaitDelay  = "wait_delay"
)

// Sequence is a persisted campaign definition: the flowchart the user drew
// plus its scheduling lifecycle.
type Sequence struct {
	ID uint `gorm:"primarykey" json:"id"`

	// Flow structure stored as JSON
	Nodes []SequenceNode `json:"nodes" gorm:"type:jsonb;serializer:json"`
	Edges []SequenceEdge `json:"edges" gorm:"type:jsonb;serializer:json"`

	Status      string     `gorm:"not null;default:'pending';index" json:"status"` // pending, processing
	ScheduledAt *time.Time `json:"scheduledAt"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Relations
	Jobs []ScheduledJob `gorm:"foreignKey:SequenceID" json:"jobs,omitempty"`
}

// SequenceNode is a node of the sequence flowchart
type SequenceNode struct {
	ID       string           `json:"id" validate:"required"`
	Type     string           `json:"type,omitempty"`
	Position NodePosition     `json:"position"`
	Data     SequenceNodeData `json:"data"`
}

type NodePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SequenceNodeData holds the display label and, optionally, the explicit
// node payload. When Kind is set the explicit fields are authoritative and
// Label is display text only.
type SequenceNodeData struct {
	Label string `json:"label"`

	Kind    string `json:"kind,omitempty" validate:"omitempty,oneof=lead_source cold_email wait_delay"`
	Email   string `json:"email,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
	Minutes *int   `json:"minutes,omitempty" validate:"omitempty,min=0"`
}

// SequenceEdge connects two nodes of the flowchart
type SequenceEdge struct {
	ID     string `json:"id" validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// IsPending reports whether the sequence can still be scheduled
func (s *Sequence) IsPending() bool {
	return s.Status == SequenceStatusPending
}
