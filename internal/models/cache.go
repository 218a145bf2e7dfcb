package models

import "encoding/json"

// CachedEntry is a generic TTL-cached read. An entry is logically absent once
// now > Expires even if still physically stored; readers treat it as a miss
// and purge it lazily.
type CachedEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Expires   int64           `json:"expires"`
}

// TableName returns the collection name for CachedEntry.
func (CachedEntry) TableName() string {
	return "cache"
}

// ExpiredAt reports whether the entry is stale at the given epoch millis.
func (c *CachedEntry) ExpiredAt(nowMillis int64) bool {
	return nowMillis > c.Expires
}
