// Package jsonutil provides tolerant JSON decoding helpers for LLM output.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleString converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null/empty.
func FlexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleInt converts a json.RawMessage to an int, accepting numbers,
// numeric strings, and floats with zero fraction. Returns ok=false when the
// value cannot be interpreted as an integer.
func FlexibleInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return int(numVal), true
		}
		return 0, false
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(strVal))
		if err != nil {
			return 0, false
		}
		return n, true
	}

	return 0, false
}

// FlexibleIntSlice converts a json.RawMessage to an []int, accepting a JSON
// array of numbers or numeric strings, or a single scalar. Lab itemids come
// back from some models as strings ("50813") or a bare number.
func FlexibleIntSlice(raw json.RawMessage) []int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		// Single scalar instead of an array.
		if n, ok := FlexibleInt(raw); ok {
			return []int{n}
		}
		return nil
	}

	out := make([]int, 0, len(elems))
	for _, e := range elems {
		if n, ok := FlexibleInt(e); ok {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FlexibleStringSlice converts a json.RawMessage to a []string, accepting a
// JSON array of scalars or a single scalar.
func FlexibleStringSlice(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		if s := FlexibleString(raw); s != "" {
			return []string{s}
		}
		return nil
	}

	out := make([]string, 0, len(elems))
	for _, e := range elems {
		if s := FlexibleString(e); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
