package models

import (
	"testing"
)

func TestEventMetadata_ScanBytes(t *testing.T) {
	var m EventMetadata
	if err := m.Scan([]byte(`{"attempts":3,"window":"ip"}`)); err != nil {
		t.Fatalf("Scan() = %v, want nil", err)
	}
	if m["window"] != "ip" {
		t.Errorf("expected window ip, got %v", m["window"])
	}
	if m["attempts"] != float64(3) {
		t.Errorf("expected attempts 3, got %v", m["attempts"])
	}
}

func TestEventMetadata_ScanNil(t *testing.T) {
	var m EventMetadata
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) = %v, want nil", err)
	}
	if m == nil || len(m) != 0 {
		t.Errorf("expected empty metadata, got %v", m)
	}
}

func TestEventMetadata_ScanRejectsUnknownType(t *testing.T) {
	var m EventMetadata
	if err := m.Scan(42); err != ErrBadRequest {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}

func TestEventMetadata_ValueNil(t *testing.T) {
	var m EventMetadata
	v, err := m.Value()
	if err != nil || v != nil {
		t.Errorf("expected nil value, got %v (%v)", v, err)
	}
}
