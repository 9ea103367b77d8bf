package reconcile

import (
	"encoding/json"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/protocol"
)

// Op is one reconciled change: Insert or Delete.
type Op interface {
	Key() string
	isOp()
}

// Insert sets the entity ID to Payload, overwriting any prior value.
type Insert struct {
	ID      string
	Payload string
}

// Delete is a tombstone for ID.
type Delete struct {
	ID string
}

func (o Insert) Key() string { return o.ID }
func (o Delete) Key() string { return o.ID }

func (Insert) isOp() {}
func (Delete) isOp() {}

// entity is the part of a structured payload that names the entity it edits.
type entity struct {
	ID      *string `json:"id"`
	Type    string  `json:"type"`
	Deleted bool    `json:"deleted"`
}

// Decode maps a stored payload to an Op. A JSON object carrying a string id
// edits that entity; it is a tombstone when its type is "delete" or its
// deleted flag is set. Any other payload is a standalone entity keyed by the
// record id.
func Decode(recordID, payload string) Op {
	var e entity
	if err := json.Unmarshal([]byte(payload), &e); err == nil && e.ID != nil && *e.ID != "" {
		if e.Type == "delete" || e.Deleted {
			return Delete{ID: *e.ID}
		}
		return Insert{ID: *e.ID, Payload: payload}
	}
	return Insert{ID: recordID, Payload: payload}
}

func FromRecord(rec domain.Record) Op {
	return Decode(rec.ID, rec.Payload)
}

func FromMessage(m *protocol.Message) Op {
	return Decode(m.ID, m.Message)
}
