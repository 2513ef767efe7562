package response

import (
	"bytes"
	"encoding/json"
	"fmt"

	errx "bookgpt/backend/internal/core/error"
)

// UnmarshalList decodes a list that models wrap in different envelopes.
// Candidates are tried in order: a bare array, then each key of an object.
// A candidate only matches when every item satisfies complete. An object with
// no matching key yields an empty list; any other JSON value is an error.
func UnmarshalList[T any](data []byte, keys []string, complete func(T) bool) ([]T, error) {
	if items, ok := decodeItems(data, complete); ok {
		return items, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array or object: %v", errx.ErrDecode, err)
	}
	if object == nil {
		return nil, fmt.Errorf("%w: expected a JSON array or object, got null", errx.ErrDecode)
	}

	for _, key := range keys {
		raw, found := object[key]
		if !found {
			continue
		}
		if items, ok := decodeItems(raw, complete); ok {
			return items, nil
		}
	}
	return []T{}, nil
}

func decodeItems[T any](data []byte, complete func(T) bool) ([]T, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	for _, item := range items {
		if !complete(item) {
			return nil, false
		}
	}
	if items == nil {
		items = []T{}
	}
	return items, true
}
