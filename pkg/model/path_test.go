package model

import (
	"errors"
	"testing"

	"github.com/lwm2m-node/lwm2m-go/pkg/registry"
)

func TestParsePath(t *testing.T) {
	r := registry.New()

	tests := []struct {
		in    string
		want  Path
		level Level
	}{
		{"/3303", ObjectPath("temperature"), LevelObject},
		{"3303/0", InstancePath("temperature", 0), LevelInstance},
		{"/3303/0/5700", ResourcePath("temperature", 0, "sensorValue"), LevelResource},
		{"temperature/0/sensorValue", ResourcePath("temperature", 0, "sensorValue"), LevelResource},
		{"/40000/2/7", ResourcePath("40000", 2, "7"), LevelResource},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePath(r, tt.in)
			if err != nil {
				t.Fatalf("ParsePath failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePath = %+v, want %+v", got, tt.want)
			}
			if got.Level() != tt.level {
				t.Errorf("Level = %v, want %v", got.Level(), tt.level)
			}
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	r := registry.New()
	for _, in := range []string{"", "/", "3303/x", "3303/-1", "3303/0/5700/1", "3303//5700", "3303/70000"} {
		if _, err := ParsePath(r, in); !errors.Is(err, ErrBadRequest) {
			t.Errorf("ParsePath(%q) err = %v, want ErrBadRequest", in, err)
		}
	}
}

func TestPathKeys(t *testing.T) {
	r := registry.New()
	p := ResourcePath("temperature", 0, "sensorValue")

	if got := p.Key(); got != "temperature/0/sensorValue" {
		t.Errorf("Key = %q", got)
	}
	if got := p.Numeric(r); got != "/3303/0/5700" {
		t.Errorf("Numeric = %q", got)
	}
	if got := p.Parent(); got != InstancePath("temperature", 0) {
		t.Errorf("Parent = %v", got)
	}
	if got := p.Parent().Parent(); got != ObjectPath("temperature") {
		t.Errorf("Parent.Parent = %v", got)
	}
	if !ObjectPath("temperature").Contains(p) || !p.Parent().Contains(p) {
		t.Error("ancestor paths should contain the resource")
	}
	if InstancePath("temperature", 1).Contains(p) {
		t.Error("sibling instance should not contain the resource")
	}
}
