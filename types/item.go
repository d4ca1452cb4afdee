package types

import (
	"path"
	"strings"
	"time"
)

// Item is a single image-bearing chat message as it enters the pipeline.
// Items are never mutated after creation.
type Item struct {
	// Payload is the raw file content.
	Payload []byte `json:"-"`
	// Name is the display name (file name) sent along with the payload.
	Name string `json:"name"`
	// MIMEType is an optional hint supplied by the chat transport.
	MIMEType string `json:"mime_type,omitempty"`
	// GroupID is the album identifier; empty for a standalone message.
	GroupID string `json:"group_id,omitempty"`
	// Seq orders items inside a group (the chat message id).
	Seq int64 `json:"seq"`
	// ChatID identifies the conversation the item came from.
	ChatID int64 `json:"chat_id"`
	// ArrivedAt is the wall-clock arrival time.
	ArrivedAt time.Time `json:"arrived_at"`
}

// Grouped reports whether the item belongs to an album.
func (it Item) Grouped() bool {
	return it.GroupID != ""
}

// Size returns the payload length in bytes.
func (it Item) Size() int64 {
	return int64(len(it.Payload))
}

// Extension returns the lower-cased file extension without the dot.
func (it Item) Extension() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(it.Name)), ".")
}

// FinalizeReason records why a batch was closed.
type FinalizeReason string

const (
	// FinalizeQuiet: no arrival for the debounce window.
	FinalizeQuiet FinalizeReason = "quiet"
	// FinalizeSingle: standalone message without a group id.
	FinalizeSingle FinalizeReason = "single"
	// FinalizeFull: the group reached its item cap.
	FinalizeFull FinalizeReason = "full"
	// FinalizeFlush: the aggregator was closed with the group still open.
	FinalizeFlush FinalizeReason = "flush"
)

// FinalizedBatch is the ordered item set handed from aggregation to dispatch.
// The position of an item in Items is its sequence index.
type FinalizedBatch struct {
	ID        string         `json:"id"`
	GroupID   string         `json:"group_id,omitempty"`
	Reason    FinalizeReason `json:"reason"`
	CreatedAt time.Time      `json:"created_at"`
	Items     []Item         `json:"items"`
}

// Len returns the number of items in the batch.
func (b *FinalizedBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Items)
}
