// Package events carries order events out of the process through an outbox.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/google/uuid"
)

const EventTypeOrderPlaced = "order.placed"

type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// OrderPlacedPayload is the body of an order.placed event.
type OrderPlacedPayload struct {
	OrderID string            `json:"orderId"`
	OwnerID string            `json:"ownerId,omitempty"`
	Items   []domain.CartLine `json:"items"`
	Total   string            `json:"total"`
	Placed  time.Time         `json:"placedAt"`
}

func NewOrderPlaced(o domain.Order) (Event, error) {
	payload, err := json.Marshal(OrderPlacedPayload{
		OrderID: o.ID,
		OwnerID: o.OwnerID,
		Items:   o.Items,
		Total:   o.Total.String(),
		Placed:  o.CreatedAt,
	})
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal order payload: %w", err)
	}
	return Event{
		ID:          uuid.NewString(),
		Type:        EventTypeOrderPlaced,
		AggregateID: o.ID,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
