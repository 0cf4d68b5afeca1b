package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON decodes the value under key into v. ok is false when the key is absent.
// A decode failure is returned as an error so callers can decide how lenient to be.
func GetJSON(ctx context.Context, p Provider, key string, v any) (bool, error) {
	raw, ok, err := p.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, p Provider, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return p.Set(ctx, key, string(data))
}
