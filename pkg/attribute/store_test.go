package attribute

import (
	"errors"
	"reflect"
	"testing"

	"github.com/lwm2m-node/lwm2m-go/pkg/codec"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/registry"
)

var (
	objPath  = model.ObjectPath("temperature")
	instPath = model.InstancePath("temperature", 0)
	resPath  = model.ResourcePath("temperature", 0, "sensorValue")
)

func TestGetDefaults(t *testing.T) {
	s := NewStore(registry.New(), DefaultPmin, DefaultPmax)

	rec := s.Get(resPath)
	if rec.Pmin != 0 || rec.Pmax != 60 {
		t.Errorf("periods = %d/%d, want 0/60", rec.Pmin, rec.Pmax)
	}
	if rec.Enable {
		t.Error("Enable should default to false")
	}
	if !rec.Cancel {
		t.Error("Cancel should default to true")
	}
	if rec.Gt != nil || rec.Lt != nil || rec.Step != nil {
		t.Error("thresholds should default to unset")
	}
	if s.Has(resPath) {
		t.Error("Get must not create a record")
	}
}

func TestGetInheritance(t *testing.T) {
	s := NewStore(registry.New(), DefaultPmin, DefaultPmax)

	if err := s.Set(objPath, map[string]string{"pmin": "5", "pmax": "100"}); err != nil {
		t.Fatalf("Set object failed: %v", err)
	}
	rec := s.Get(resPath)
	if rec.Pmin != 5 || rec.Pmax != 100 {
		t.Errorf("object inheritance: periods = %d/%d, want 5/100", rec.Pmin, rec.Pmax)
	}

	if err := s.Set(instPath, map[string]string{"pmax": "30"}); err != nil {
		t.Fatalf("Set instance failed: %v", err)
	}
	rec = s.Get(resPath)
	if rec.Pmin != 5 || rec.Pmax != 30 {
		t.Errorf("instance inheritance: periods = %d/%d, want 5/30", rec.Pmin, rec.Pmax)
	}

	if err := s.Set(resPath, map[string]string{"pmin": "1"}); err != nil {
		t.Fatalf("Set resource failed: %v", err)
	}
	rec = s.Get(resPath)
	if rec.Pmin != 1 || rec.Pmax != 30 {
		t.Errorf("resource record: periods = %d/%d, want 1/30", rec.Pmin, rec.Pmax)
	}

	other := s.Get(model.ResourcePath("temperature", 1, "sensorValue"))
	if other.Pmin != 5 || other.Pmax != 100 {
		t.Errorf("sibling instance: periods = %d/%d, want 5/100", other.Pmin, other.Pmax)
	}
}

func TestSetThresholds(t *testing.T) {
	s := NewStore(registry.New(), DefaultPmin, DefaultPmax)

	err := s.Set(resPath, map[string]string{"gt": "10", "lt": "20.5", "st": "2", "cancel": "false"})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	rec := s.Get(resPath)
	if rec.Gt == nil || *rec.Gt != 10 {
		t.Errorf("Gt = %v, want 10", rec.Gt)
	}
	if rec.Lt == nil || *rec.Lt != 20.5 {
		t.Errorf("Lt = %v, want 20.5", rec.Lt)
	}
	if rec.Step == nil || *rec.Step != 2 {
		t.Errorf("Step = %v, want 2", rec.Step)
	}
	if rec.Cancel {
		t.Error("Cancel = true, want false")
	}

	if err := s.Set(resPath, map[string]string{"gt": ""}); err != nil {
		t.Fatalf("clearing gt failed: %v", err)
	}
	if s.Get(resPath).Gt != nil {
		t.Error("gt should be cleared")
	}
}

func TestSetRejects(t *testing.T) {
	s := NewStore(registry.New(), DefaultPmin, DefaultPmax)

	tests := []map[string]string{
		{"pmin": "1", "bogus": "1"},
		{"pmin": "-1"},
		{"pmax": "soon"},
		{"gt": "hot"},
		{"step": "-1"},
		{"cancel": "maybe"},
	}
	for _, attrs := range tests {
		if err := s.Set(resPath, attrs); !errors.Is(err, model.ErrBadRequest) {
			t.Errorf("Set(%v) err = %v, want ErrBadRequest", attrs, err)
		}
	}
	if s.Get(resPath).Pmin != 0 {
		t.Error("rejected Set must not apply valid keys")
	}
}

func TestUpdateState(t *testing.T) {
	s := NewStore(registry.New(), DefaultPmin, DefaultPmax)

	rec := s.UpdateState(resPath, func(st *State) {
		st.Enable = true
		st.Cancel = false
		st.LastReported = 21
	})
	if !rec.Enable || rec.Cancel || rec.LastReported != 21 {
		t.Errorf("UpdateState returned %+v", rec)
	}
	if !s.Has(resPath) {
		t.Error("UpdateState should create the record")
	}
}

func TestNumericAndSymbolicPathsShareRecords(t *testing.T) {
	s := NewStore(registry.New(), DefaultPmin, DefaultPmax)
	numeric := model.ResourcePath("3303", 0, "5700")

	if err := s.Set(numeric, map[string]string{"pmin": "0", "pmax": "1", "gt": "25"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	rec := s.Get(resPath)
	if rec.Pmax != 1 {
		t.Errorf("Pmax = %d, want 1", rec.Pmax)
	}
	if rec.Gt == nil || *rec.Gt != 25 {
		t.Errorf("Gt = %v, want 25", rec.Gt)
	}
	if !s.Has(resPath) {
		t.Error("Has(symbolic) = false after Set(numeric)")
	}

	if err := s.Set(model.InstancePath("3303", 0), map[string]string{"pmin": "7"}); err != nil {
		t.Fatalf("Set instance failed: %v", err)
	}
	if got := s.Get(resPath).Pmin; got != 7 {
		t.Errorf("inherited Pmin = %d, want 7", got)
	}

	s.UpdateState(resPath, func(st *State) { st.Enable = true })
	if !s.Get(numeric).Enable {
		t.Error("Enable set via symbolic path not visible via numeric path")
	}
	if want := []string{"temperature/0", "temperature/0/sensorValue"}; !reflect.DeepEqual(s.Keys(), want) {
		t.Errorf("Keys = %v, want %v", s.Keys(), want)
	}
}

func TestParseQuery(t *testing.T) {
	got := ParseQuery([]string{"pmin=10", "lt", "gt=1.5"})
	want := map[string]string{"pmin": "10", "lt": "", "gt": "1.5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseQuery = %v, want %v", got, want)
	}
}

func TestDiscover(t *testing.T) {
	tree := model.NewTree(registry.New())
	_ = tree.InitResource("3303", 0, map[string]any{"5700": 21, "5701": "C"})
	s := NewStore(registry.New(), DefaultPmin, DefaultPmax)
	_ = s.Set(instPath, map[string]string{"pmax": "60"})
	_ = s.Set(resPath, map[string]string{"pmin": "10", "gt": "25"})

	links, err := s.Discover(tree, instPath)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []codec.Link{
		{Target: "/3303/0", Params: []codec.Param{{Key: "pmax", Value: "60"}}},
		{Target: "/3303/0/5700", Params: []codec.Param{{Key: "pmin", Value: "10"}, {Key: "gt", Value: "25"}}},
		{Target: "/3303/0/5701"},
	}
	if !reflect.DeepEqual(links, want) {
		t.Errorf("Discover = %+v, want %+v", links, want)
	}

	if _, err := s.Discover(tree, model.InstancePath("3303", 9)); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Discover missing err = %v, want ErrNotFound", err)
	}
}
