package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/dumaterial/materials-api/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventPrincipalRegistered EventType = "principal_registered"
	EventPrincipalLoggedIn   EventType = "principal_logged_in"
	EventPrincipalLoggedOut  EventType = "principal_logged_out"
	EventMaterialCreated     EventType = "material_created"
	EventMaterialUpdated     EventType = "material_updated"
	EventMaterialDeleted     EventType = "material_deleted"
	EventMaterialPurchased   EventType = "material_purchased"
)

// Actor identifies who caused an event.
type Actor struct {
	Role domain.Role `json:"role"`
	ID   string      `json:"id"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SubjectID string    `json:"subject_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, subjectID string, actor Actor, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// PrincipalPayload accompanies registration and login events.
type PrincipalPayload struct {
	Email string `json:"email"`
}

// MaterialPayload accompanies material lifecycle events.
type MaterialPayload struct {
	Sem     string `json:"sem"`
	Subject string `json:"subject"`
	// Assets lists the media keys that belonged to the material.
	Assets []string `json:"assets,omitempty"`
}

// PurchasePayload accompanies material_purchased.
type PurchasePayload struct {
	PurchaseID string `json:"purchase_id"`
	MaterialID string `json:"material_id"`
}
