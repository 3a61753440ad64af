package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCartItemAdded           = "CartItemAdded"
	EventCartItemRemoved         = "CartItemRemoved"
	EventCartItemQuantityUpdated = "CartItemQuantityUpdated"
	EventCartCleared             = "CartCleared"
	EventCartDeleted             = "CartDeleted"

	EventOrderCreated = "OrderCreated"
)

// EventWrapper is the envelope every service in the system puts on the wire.
type EventWrapper struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type OutgoingEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type EventMeta struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type CartItemAddedEvent struct {
	EventMeta
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"price"`
	Added       int             `json:"added"`
	Quantity    int             `json:"quantity"`
}

type CartItemRemovedEvent struct {
	EventMeta
	ProductID string `json:"product_id"`
}

type CartItemQuantityUpdatedEvent struct {
	EventMeta
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Removed   bool   `json:"removed"`
}

type CartClearedEvent struct {
	EventMeta
}

type CartDeletedEvent struct {
	EventMeta
}

// OrderCreatedEvent carries only the fields the cart cares about.
type OrderCreatedEvent struct {
	OrderID FlexibleID `json:"order_id"`
	UserID  FlexibleID `json:"user_id"`
}

// FlexibleID accepts an identifier encoded either as a JSON string or a number.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}
