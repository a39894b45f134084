package sync

import (
	"encoding/json"
	"fmt"

	"tobiascms/pkg/domain"
	"tobiascms/pkg/store"
)

// Records cross the store boundary as camelCase field maps and live in
// the collection as typed structs; the JSON tags on the domain types
// define the mapping.

func toFields[T domain.Entity](rec T) (store.Fields, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	fields := store.Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	return fields, nil
}

func fromFields[T domain.Entity](fields store.Fields) (T, error) {
	var rec T
	raw, err := json.Marshal(fields)
	if err != nil {
		return rec, fmt.Errorf("encode record fields: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// mergeFields shallow-merges patch over current, ignoring any id in
// the patch: ids are immutable after creation.
func mergeFields(current store.Fields, patch map[string]any) store.Fields {
	merged := make(store.Fields, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	return merged
}
