// Package domain holds the sync core's persisted entities: Station,
// StationCredential, Event and Acknowledgement, plus the wire DTOs the
// Delivery API exchanges with peer stations.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of mutation an Event records.
type Action string

const (
	ActionCreated Action = "C"
	ActionUpdated Action = "U"
	ActionDeleted Action = "D"
)

// IsValid reports whether a is one of the three recognized actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	default:
		return false
	}
}

// AckStatus is the lifecycle state of an Acknowledgement row.
type AckStatus string

const (
	AckPending      AckStatus = "pending"
	AckAcknowledged AckStatus = "acknowledged"
)

// Station is a peer node participating in sync. Provisioned out-of-band;
// the sync core never creates one.
type Station struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// StationCredential binds a Station to the bearer token peers present on the
// wire as "Authorization: Api-Key <token>".
type StationCredential struct {
	ID        int64     `json:"id"`
	StationID int64     `json:"station_id"`
	BaseURL   string    `json:"base_url"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one immutable captured mutation.
type Event struct {
	ID              uuid.UUID       `json:"id"`
	EntityType      string          `json:"model"`
	ObjectID        string          `json:"object_id"`
	Action          Action          `json:"action"`
	Payload         json.RawMessage `json:"data_payload"`
	SourceStationID *int64          `json:"source_station_id,omitempty"`
	CreatedAt       time.Time       `json:"timestamp"`
}

// Acknowledgement is one (Event, destination Station) delivery row.
type Acknowledgement struct {
	ID             int64      `json:"id"`
	EventID        uuid.UUID  `json:"event_id"`
	StationID      int64      `json:"station_id"`
	Status         AckStatus  `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// InboundChange is one element of the POST /push request body.
type InboundChange struct {
	EventUUID   uuid.UUID       `json:"event_uuid" validate:"required"`
	Model       string          `json:"model" validate:"required"`
	Action      Action          `json:"action" validate:"required"`
	ObjectID    string          `json:"object_id" validate:"required"`
	DataPayload json.RawMessage `json:"data_payload" validate:"required"`
}

// OutboundChange is one element of pending_changes in GET /get-pending.
type OutboundChange struct {
	ID          uuid.UUID       `json:"id"`
	Model       string          `json:"model"`
	Action      Action          `json:"action"`
	ObjectID    string          `json:"object_id"`
	DataPayload json.RawMessage `json:"data_payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// AcknowledgeRequest is the body of POST /acknowledge.
type AcknowledgeRequest struct {
	AcknowledgedEvents []uuid.UUID `json:"acknowledged_events" validate:"required"`
}

// GetPendingResponse is the body of GET /get-pending.
type GetPendingResponse struct {
	PendingChanges     []OutboundChange `json:"pending_changes"`
	AcknowledgedEvents []uuid.UUID      `json:"acknowledged_events"`
}
