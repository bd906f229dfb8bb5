package models

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ID is the normalised identifier of every backend entity. The persistence
// service is inconsistent about emitting ids as numbers or numeric strings, so
// conversion happens here, once, while decoding.
type ID int64

// ParseID converts a path or query value into an ID.
func ParseID(raw string) (ID, error) {
	v, err := parseWholeNumber(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("id must be positive, got %d", v)
	}
	return ID(v), nil
}

// Valid reports whether the id references a persisted entity.
func (id ID) Valid() bool { return id > 0 }

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// UnmarshalJSON accepts 12, "12", 12.0, null and "".
func (id *ID) UnmarshalJSON(data []byte) error {
	raw, isNull := unquote(data)
	if isNull {
		*id = 0
		return nil
	}
	v, err := parseWholeNumber(raw)
	if err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(v)
	return nil
}

// Number is a float that tolerates numeric strings, as emitted for DECIMAL columns.
type Number float64

// UnmarshalJSON accepts 7.5, "7.5", null and "".
func (n *Number) UnmarshalJSON(data []byte) error {
	raw, isNull := unquote(data)
	if isNull {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("decode number %q", raw)
	}
	*n = Number(v)
	return nil
}

// Float returns the value as float64.
func (n Number) Float() float64 { return float64(n) }

// NumberPtr is a helper for literals in fixtures and tests.
func NumberPtr(v float64) *Number {
	n := Number(v)
	return &n
}

// Flag is a boolean that also accepts 0/1 and their string forms.
type Flag bool

// UnmarshalJSON accepts true, false, 1, 0, "1", "0", "true", "false" and null.
func (f *Flag) UnmarshalJSON(data []byte) error {
	raw, isNull := unquote(data)
	if isNull {
		*f = false
		return nil
	}
	switch strings.ToLower(raw) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("decode flag %q", raw)
	}
	return nil
}

// UniqueIDs drops invalid and duplicated ids and returns them sorted.
func UniqueIDs(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unquote(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return "", true
	}
	raw := strings.TrimSpace(strings.Trim(string(trimmed), `"`))
	return raw, raw == ""
}

func parseWholeNumber(raw string) (int64, error) {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid identifier %q", raw)
	}
	return int64(f), nil
}
