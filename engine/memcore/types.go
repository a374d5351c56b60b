// Package memcore holds the shared types of the tiered memory engine:
// the opaque memory item, storage tiers, access-tracking records and the
// error taxonomy used across tiers.
package memcore

import (
	"context"
	"encoding/json"
	"time"
)

// StorageTier identifies where an item currently lives.
type StorageTier string

const (
	TierHot  StorageTier = "hot"
	TierWarm StorageTier = "warm"
	TierCold StorageTier = "cold"
)

// Item is the unit of storage. The engine serializes and moves it between
// tiers but never interprets Content.
type Item struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id,omitempty"`
	Content     string         `json:"content"`
	ContentType string         `json:"content_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// MarshalJSONString renders the item as a compact JSON string for
// key-value storage.
func (i *Item) MarshalJSONString() (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalItem parses an item previously produced by MarshalJSONString.
func UnmarshalItem(data string) (*Item, error) {
	var item Item
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ToDocument converts the item into a document-store payload.
func (i *Item) ToDocument() map[string]any {
	doc := map[string]any{
		"id":           i.ID,
		"user_id":      i.UserID,
		"content":      i.Content,
		"content_type": i.ContentType,
		"timestamp":    i.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if i.SessionID != "" {
		doc["session_id"] = i.SessionID
	}
	if len(i.Metadata) > 0 {
		doc["metadata"] = i.Metadata
	}
	return doc
}

// ItemFromDocument rebuilds an item from a document-store payload.
func ItemFromDocument(doc map[string]any) *Item {
	item := &Item{
		ID:          asString(doc["id"]),
		UserID:      asString(doc["user_id"]),
		SessionID:   asString(doc["session_id"]),
		Content:     asString(doc["content"]),
		ContentType: asString(doc["content_type"]),
	}
	if meta, ok := doc["metadata"].(map[string]any); ok {
		item.Metadata = meta
	}
	if ts := asString(doc["timestamp"]); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			item.Timestamp = parsed
		}
	}
	return item
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// AccessRecord tracks how often and how recently an item was read. Records
// drive tier placement and are persisted across restarts.
type AccessRecord struct {
	Count      int64     `json:"access_count"`
	LastAccess time.Time `json:"last_access"`
}

// BaseStore is the authoritative source of truth every write always
// reaches, independent of tiering.
type BaseStore interface {
	AddMemoryItem(ctx context.Context, item *Item) (string, error)
	GetMemoryItem(ctx context.Context, id string) (*Item, error)
	HealthCheck(ctx context.Context) error
}
