package registry

import (
	"errors"
	"strings"
	"testing"
)

func TestResolverBuiltins(t *testing.T) {
	r := New()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ObjectKey", r.ObjectKey("3303"), "temperature"},
		{"ObjectID", r.ObjectID("temperature"), "3303"},
		{"ResourceKey numeric oid", r.ResourceKey("3303", "5700"), "sensorValue"},
		{"ResourceKey symbolic oid", r.ResourceKey("temperature", "5701"), "units"},
		{"ResourceID", r.ResourceID("device", "manuf"), "0"},
		{"Device object", r.ObjectKey("3"), "device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestResolverIsTotal(t *testing.T) {
	r := New()

	if got := r.ObjectKey("40000"); got != "40000" {
		t.Errorf("ObjectKey(unknown) = %q, want echo", got)
	}
	if got := r.ObjectID("noSuchObject"); got != "noSuchObject" {
		t.Errorf("ObjectID(unknown) = %q, want echo", got)
	}
	if got := r.ResourceKey("40000", "7"); got != "7" {
		t.Errorf("ResourceKey(unknown object) = %q, want echo", got)
	}
	if got := r.ResourceKey("3303", "9999"); got != "9999" {
		t.Errorf("ResourceKey(unknown resource) = %q, want echo", got)
	}
}

func TestResolverLoadYAML(t *testing.T) {
	r := New()
	src := `
objects:
  - id: 32769
    name: valve
    resources:
      1: position
      2: target
`
	if err := r.LoadYAML(strings.NewReader(src)); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}

	if got := r.ObjectKey("32769"); got != "valve" {
		t.Errorf("ObjectKey = %q, want valve", got)
	}
	if got := r.ResourceKey("valve", "2"); got != "target" {
		t.Errorf("ResourceKey = %q, want target", got)
	}
	if got := r.ResourceID("32769", "position"); got != "1" {
		t.Errorf("ResourceID = %q, want 1", got)
	}
}

func TestResolverDefineErrors(t *testing.T) {
	r := New()

	if err := r.Define(ObjectDef{ID: 1000}); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("missing name: err = %v, want ErrInvalidDefinition", err)
	}
	if err := r.Define(ObjectDef{ID: 1000, Name: "123"}); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("numeric name: err = %v, want ErrInvalidDefinition", err)
	}
	if err := r.Define(ObjectDef{ID: 1000, Name: "temperature"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate name: err = %v, want ErrDuplicateName", err)
	}
	if err := r.Define(ObjectDef{ID: 70000, Name: "big"}); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("id out of range: err = %v, want ErrInvalidDefinition", err)
	}
}

func TestResolverRedefineReplaces(t *testing.T) {
	r := New()
	if err := r.Define(ObjectDef{ID: 3303, Name: "temp", Resources: map[int]string{5700: "value"}}); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if got := r.ObjectKey("3303"); got != "temp" {
		t.Errorf("ObjectKey = %q, want temp", got)
	}
	if got := r.ObjectID("temperature"); got != "temperature" {
		t.Errorf("old name should no longer resolve, got %q", got)
	}
}
