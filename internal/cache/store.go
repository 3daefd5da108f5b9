package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a cached value with the time it was stored. The timestamp is
// informational; entries never expire.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store is the persistent key-value port behind a Cache. A missing key is
// reported as found=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error

	// Tag adds key to the member set of each tag.
	Tag(ctx context.Context, key string, tags ...string) error
	KeysForTag(ctx context.Context, tag string) ([]string, error)
	DropTag(ctx context.Context, tag string) error
}
