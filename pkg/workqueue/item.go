package workqueue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Handle is the broker-assigned delivery handle. It is empty until the item is read.
type Handle string

// Item is one unit of asynchronous work for a single entity.
type Item struct {
	Kind          string    `json:"kind"`
	EntityID      string    `json:"entity_id"`
	TraceID       string    `json:"trace_id"`
	Attempts      int       `json:"attempts"`
	Cascade       bool      `json:"cascade"`
	FullMigration bool      `json:"full_migration,omitempty"`
	AvailableAt   time.Time `json:"available_at,omitempty"`

	Handle Handle `json:"-"`
}

func (it Item) Validate() error {
	if strings.TrimSpace(it.Kind) == "" {
		return invalidItem("kind is required")
	}
	if strings.TrimSpace(it.EntityID) == "" {
		return invalidItem("entity_id is required")
	}
	if it.Attempts < 0 {
		return invalidItem("attempts must be non-negative, got %d", it.Attempts)
	}
	return nil
}

// Requeued returns a copy fit for republishing: same identity and attempts,
// no delivery handle, available no earlier than availableAt.
func (it Item) Requeued(availableAt time.Time) Item {
	it.Handle = ""
	it.AvailableAt = availableAt
	return it
}

// Child returns a fresh item for a dependent entity in the same trace.
func (it Item) Child(kind, entityID string) Item {
	return Item{
		Kind:     kind,
		EntityID: entityID,
		TraceID:  it.TraceID,
		Cascade:  it.Cascade,
	}
}

func (it Item) String() string {
	return fmt.Sprintf("%s/%s (trace=%s attempts=%d)", it.Kind, it.EntityID, it.TraceID, it.Attempts)
}

func Encode(it Item) ([]byte, error) {
	return json.Marshal(it)
}

func Decode(b []byte) (Item, error) {
	var it Item
	if err := json.Unmarshal(b, &it); err != nil {
		return Item{}, fmt.Errorf("workqueue decode: %w", err)
	}
	return it, nil
}
