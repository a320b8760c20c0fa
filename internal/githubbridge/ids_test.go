package githubbridge

import (
	"strings"
	"testing"
)

func TestNewRunIDFormat(t *testing.T) {
	id := NewRunID(42, 1_700_000_000_000, "comment:7")
	parts := strings.Split(id, "-")
	if len(parts) != 4 {
		t.Fatalf("expected 4 dash-separated parts, got %d: %q", len(parts), id)
	}
	if parts[0] != "gh" {
		t.Fatalf("expected gh prefix, got %q", parts[0])
	}
	if parts[1] != "42" {
		t.Fatalf("expected issue number 42, got %q", parts[1])
	}
	if parts[2] != "1700000000000" {
		t.Fatalf("expected timestamp, got %q", parts[2])
	}
	if len(parts[3]) != 8 {
		t.Fatalf("expected an 8 hex char hash suffix, got %q (len %d)", parts[3], len(parts[3]))
	}
}

func TestNewRunIDDeterministicForSameInputs(t *testing.T) {
	a := NewRunID(1, 1000, "comment:1")
	b := NewRunID(1, 1000, "comment:1")
	if a != b {
		t.Fatalf("expected identical inputs to produce identical run ids, got %q vs %q", a, b)
	}
}

func TestNewRunIDHashVariesByEventKey(t *testing.T) {
	a := NewRunID(1, 1000, "comment:1")
	b := NewRunID(1, 1000, "comment:2")
	if a == b {
		t.Fatalf("expected different event keys to produce different run ids, both were %q", a)
	}
}
