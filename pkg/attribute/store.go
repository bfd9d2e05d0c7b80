package attribute

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lwm2m-node/lwm2m-go/pkg/codec"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
)

// Default reporting periods in seconds.
const (
	DefaultPmin = 0
	DefaultPmax = 60
)

// Record is the effective attribute set of one path.
type Record struct {
	Pmin int
	Pmax int
	Gt   *float64
	Lt   *float64
	Step *float64

	Enable bool
	Mute   bool
	Cancel bool

	// LastReported is the value the last notification carried.
	LastReported any
}

// State is the mutable observation part of a record.
type State struct {
	Enable       bool
	Mute         bool
	Cancel       bool
	LastReported any
}

type record struct {
	pmin *int
	pmax *int
	gt   *float64
	lt   *float64
	step *float64
	State
}

func newRecord() *record {
	return &record{State: State{Cancel: true}}
}

// Store holds reporting attributes keyed by canonical path. Paths given
// with numeric ids address the same records as their symbolic forms.
type Store struct {
	resolver model.Resolver

	mu      sync.RWMutex
	records map[string]*record
	pmin    int
	pmax    int
}

// NewStore creates a store with the given default periods in seconds. The
// resolver normalizes paths; nil keeps them as given.
func NewStore(resolver model.Resolver, pmin, pmax int) *Store {
	return &Store{
		resolver: resolver,
		records:  make(map[string]*record),
		pmin:     pmin,
		pmax:     pmax,
	}
}

func (s *Store) normalize(p model.Path) model.Path {
	if s.resolver == nil {
		return p
	}
	return p.Normalize(s.resolver)
}

// Defaults returns the store-wide default periods.
func (s *Store) Defaults() (pmin, pmax int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pmin, s.pmax
}

// SetDefaults changes the store-wide default periods.
func (s *Store) SetDefaults(pmin, pmax int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pmin, s.pmax = pmin, pmax
}

// Get returns the effective attributes of p. Without a record for p the
// result is synthesized from inherited periods and defaults.
func (s *Store) Get(p model.Path) Record {
	p = s.normalize(p)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(p)
}

// Has reports whether a record exists for p.
func (s *Store) Has(p model.Path) bool {
	p = s.normalize(p)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[p.Key()]
	return ok
}

func (s *Store) resolve(p model.Path) Record {
	out := Record{Pmin: s.pmin, Pmax: s.pmax, Cancel: true}

	rec, ok := s.records[p.Key()]
	if ok {
		out.Gt = cloneFloat(rec.gt)
		out.Lt = cloneFloat(rec.lt)
		out.Step = cloneFloat(rec.step)
		out.Enable = rec.Enable
		out.Mute = rec.Mute
		out.Cancel = rec.Cancel
		out.LastReported = model.Clone(rec.LastReported)
	}

	pminSet, pmaxSet := false, false
	for _, key := range lineage(p) {
		r, ok := s.records[key]
		if !ok {
			continue
		}
		if !pminSet && r.pmin != nil {
			out.Pmin, pminSet = *r.pmin, true
		}
		if !pmaxSet && r.pmax != nil {
			out.Pmax, pmaxSet = *r.pmax, true
		}
	}
	return out
}

// lineage returns the keys of p and its ancestors, most specific first.
func lineage(p model.Path) []string {
	keys := []string{p.Key()}
	for p.Level() != model.LevelObject {
		p = p.Parent()
		keys = append(keys, p.Key())
	}
	return keys
}

// Ensure creates the record for p if it does not exist.
func (s *Store) Ensure(p model.Path) {
	p = s.normalize(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(p)
}

func (s *Store) ensure(p model.Path) *record {
	rec, ok := s.records[p.Key()]
	if !ok {
		rec = newRecord()
		s.records[p.Key()] = rec
	}
	return rec
}

// UpdateState applies fn to the observation state of p and returns the
// effective record afterwards.
func (s *Store) UpdateState(p model.Path, fn func(*State)) Record {
	p = s.normalize(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensure(p)
	fn(&rec.State)
	return s.resolve(p)
}

// Set merges attrs into the record of p. Recognized keys are pmin, pmax,
// gt, lt, step (or st) and cancel. A key without value clears it. Any
// unknown key or malformed value fails the whole call with
// model.ErrBadRequest.
func (s *Store) Set(p model.Path, attrs map[string]string) error {
	p = s.normalize(p)
	type change func(*record)
	var changes []change

	for key, raw := range attrs {
		switch key {
		case "pmin", "pmax":
			v, err := parsePeriod(key, raw)
			if err != nil {
				return err
			}
			if key == "pmin" {
				changes = append(changes, func(r *record) { r.pmin = v })
			} else {
				changes = append(changes, func(r *record) { r.pmax = v })
			}
		case "gt", "lt", "step", "st":
			v, err := parseNumber(key, raw)
			if err != nil {
				return err
			}
			switch key {
			case "gt":
				changes = append(changes, func(r *record) { r.gt = v })
			case "lt":
				changes = append(changes, func(r *record) { r.lt = v })
			default:
				if v != nil && *v < 0 {
					return fmt.Errorf("%w: step must not be negative", model.ErrBadRequest)
				}
				changes = append(changes, func(r *record) { r.step = v })
			}
		case "cancel":
			v, err := parseFlag(key, raw)
			if err != nil {
				return err
			}
			changes = append(changes, func(r *record) { r.Cancel = v })
		default:
			return fmt.Errorf("%w: unknown attribute %q", model.ErrBadRequest, key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensure(p)
	for _, c := range changes {
		c(rec)
	}
	return nil
}

// ParseQuery converts query parameters ("pmin=10", "lt") to an attribute
// map for Set.
func ParseQuery(query []string) map[string]string {
	attrs := make(map[string]string, len(query))
	for _, q := range query {
		k, v, _ := strings.Cut(q, "=")
		attrs[k] = v
	}
	return attrs
}

// Params returns the explicitly configured attributes of p as link
// parameters in a fixed order.
func (s *Store) Params(p model.Path) []codec.Param {
	p = s.normalize(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[p.Key()]
	if !ok {
		return nil
	}
	var params []codec.Param
	if rec.pmin != nil {
		params = append(params, codec.Param{Key: "pmin", Value: strconv.Itoa(*rec.pmin)})
	}
	if rec.pmax != nil {
		params = append(params, codec.Param{Key: "pmax", Value: strconv.Itoa(*rec.pmax)})
	}
	if rec.gt != nil {
		params = append(params, codec.Param{Key: "gt", Value: formatFloat(*rec.gt)})
	}
	if rec.lt != nil {
		params = append(params, codec.Param{Key: "lt", Value: formatFloat(*rec.lt)})
	}
	if rec.step != nil {
		params = append(params, codec.Param{Key: "step", Value: formatFloat(*rec.step)})
	}
	return params
}

// Keys returns the keys of all records, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parsePeriod(key, raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: %s=%q is not a non-negative integer", model.ErrBadRequest, key, raw)
	}
	return &v, nil
}

func parseNumber(key, raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q is not a number", model.ErrBadRequest, key, raw)
	}
	return &v, nil
}

func parseFlag(key, raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "", "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s=%q is not a boolean", model.ErrBadRequest, key, raw)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
