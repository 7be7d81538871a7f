package routes

import (
	"errors"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"counter", "/counter"},
		{"/counter/", "/counter"},
		{"//a///b", "/a/b"},
		{"/a/./b", "/a/b"},
		{"/a/b/../c", "/a/c"},
		{"/a/..", "/"},
	}
	for _, tt := range tests {
		got, err := Canonical(tt.in)
		if err != nil {
			t.Errorf("Canonical(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalRejects(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{`/a\b`, ErrBackslashInPath},
		{"/a\x00", ErrNullByteInPath},
		{"/a%00", ErrNullByteInPath},
		{"/a?x=1", ErrInvalidPath},
		{"/../secret", ErrPathEscapesRoot},
	}
	for _, tt := range tests {
		if _, err := Canonical(tt.in); !errors.Is(err, tt.want) {
			t.Errorf("Canonical(%q) error = %v, want %v", tt.in, err, tt.want)
		}
	}
}
