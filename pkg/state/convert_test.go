package state

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestFromAny(t *testing.T) {
	n := 7
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"bool", true, Bool(true)},
		{"int", 42, Int(42)},
		{"uint8", uint8(9), Int(9)},
		{"float", 2.5, Number(2.5)},
		{"string", "s", String("s")},
		{"json number", json.Number("12"), Int(12)},
		{"pointer", &n, Int(7)},
		{"nil pointer", (*int)(nil), Null()},
		{"strings", []string{"a", "b"}, List(String("a"), String("b"))},
		{"array", [2]int{1, 2}, List(Int(1), Int(2))},
		{"nested", map[string]any{"a": []any{1, map[string]any{"b": nil}}},
			Object(map[string]Value{"a": List(Int(1), Object(map[string]Value{"b": Null()}))})},
		{"value", String("v"), String("v")},
		{"state map", Map{"k": Int(1)}, Object(map[string]Value{"k": Int(1)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			if err != nil {
				t.Fatalf("FromAny: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("FromAny() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromAnyUnsupported(t *testing.T) {
	tests := []struct {
		name string
		in   any
		key  string
	}{
		{"func", func() {}, ""},
		{"chan", make(chan int), ""},
		{"complex", complex(1, 2), ""},
		{"int keys", map[int]string{1: "a"}, ""},
		{"nested func", map[string]any{"a": []any{1, func() {}}}, "a[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromAny(tt.in)
			var se *SerializationError
			if !errors.As(err, &se) {
				t.Fatalf("FromAny() error = %v, want *SerializationError", err)
			}
			if se.Key != tt.key {
				t.Errorf("Key = %q, want %q", se.Key, tt.key)
			}
		})
	}
}

func TestFromAnyCycle(t *testing.T) {
	m := map[string]any{}
	m["self"] = m
	_, err := FromAny(m)
	var se *SerializationError
	if !errors.As(err, &se) {
		t.Fatalf("FromAny() error = %v, want *SerializationError", err)
	}
	if se.Reason != "cyclic reference" {
		t.Errorf("Reason = %q, want cyclic reference", se.Reason)
	}

	s := make([]any, 1)
	s[0] = s
	if _, err := FromAny(s); err == nil {
		t.Error("FromAny(self-referencing slice) succeeded, want error")
	}
}

func TestFromAnySharedIsNotCycle(t *testing.T) {
	shared := []any{1}
	got, err := FromAny(map[string]any{"a": shared, "b": shared})
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if got.Len() != 2 {
		t.Errorf("Len() = %d, want 2", got.Len())
	}
}

func TestMapFromAnyKeyPath(t *testing.T) {
	_, err := MapFromAny(map[string]any{"ok": 1, "bad": map[string]any{"fn": func() {}}})
	var se *SerializationError
	if !errors.As(err, &se) {
		t.Fatalf("MapFromAny() error = %v, want *SerializationError", err)
	}
	if se.Key != "bad.fn" {
		t.Errorf("Key = %q, want bad.fn", se.Key)
	}
}
