package dns

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

type stubZone struct{ name string }

func (s stubZone) Name() string                                   { return s.name }
func (s stubZone) List(context.Context) ([]ExistingRecord, error) { return nil, nil }
func (s stubZone) CreateOrUpdate(context.Context, Record, Precondition) error {
	return nil
}
func (s stubZone) Delete(context.Context, string, RecordType, Precondition) error {
	return nil
}

func TestRegistry(t *testing.T) {
	Register("stub-registry-test", func(_ logr.Logger, settings map[string]string) (Zone, error) {
		return stubZone{name: settings["zone_name"]}, nil
	})

	if !slices.Contains(Providers(), "stub-registry-test") {
		t.Fatalf("expected stub provider in %v", Providers())
	}

	zone, err := NewZone("stub-registry-test", logr.Discard(), map[string]string{"zone_name": "example.internal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zone.Name() != "example.internal" {
		t.Errorf("expected zone name 'example.internal', got %q", zone.Name())
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	if _, err := NewZone("does-not-exist", logr.Discard(), nil); err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
}

func TestNewZoneBinding(t *testing.T) {
	Register("stub-binding-test", func(_ logr.Logger, settings map[string]string) (Zone, error) {
		if settings["fail"] != "" {
			return nil, errors.New("boom")
		}
		return stubZone{name: "other.internal"}, nil
	})

	tests := []struct {
		name     string
		settings map[string]string
		wantErr  string
	}{
		{"missing zone_name", nil, "zone_name setting is required"},
		{"factory error", map[string]string{"zone_name": "other.internal", "fail": "1"}, "dns provider stub-binding-test: boom"},
		{"zone mismatch", map[string]string{"zone_name": "example.internal"}, "client bound to zone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewZone("stub-binding-test", logr.Discard(), tt.settings)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	zone, err := NewZone("stub-binding-test", logr.Discard(), map[string]string{"zone_name": "Other.Internal."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if zone.Name() != "other.internal" {
		t.Errorf("zone = %q", zone.Name())
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	f := func(logr.Logger, map[string]string) (Zone, error) { return stubZone{}, nil }
	Register("stub-duplicate-test", f)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register("stub-duplicate-test", f)
}
