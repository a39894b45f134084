package store

import "strings"

// The application speaks camelCase, the record store speaks snake_case.
// The two transforms below are total and inverse of each other for keys
// that follow those conventions, so a record survives a write/read
// round trip unchanged.

// SnakeKeys returns record with every key converted to snake_case.
func SnakeKeys(record Fields) Fields {
	out := make(Fields, len(record))
	for k, v := range record {
		out[toSnake(k)] = v
	}
	return out
}

// CamelKeys returns record with every key converted to camelCase.
func CamelKeys(record Fields) Fields {
	out := make(Fields, len(record))
	for k, v := range record {
		out[toCamel(k)] = v
	}
	return out
}

func toSnake(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for _, r := range key {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toCamel(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	upper := false
	for _, r := range key {
		if r == '_' {
			upper = true
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			b.WriteRune(r - 'a' + 'A')
			upper = false
			continue
		}
		upper = false
		b.WriteRune(r)
	}
	return b.String()
}
