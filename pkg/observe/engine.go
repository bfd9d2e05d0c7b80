package observe

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/attribute"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
)

// ErrNotObserved is reported when an operation needs an active observer.
var ErrNotObserved = errors.New("path not observed")

// WriteFunc pushes one notification value onto an open observe stream.
type WriteFunc func(value any) error

// Dumper reads current values without triggering change reports.
type Dumper interface {
	Dump(ctx context.Context, p model.Path) (any, error)
	Resolver() model.Resolver
}

// Notification describes a pushed report.
type Notification struct {
	Path      model.Path
	Value     any
	Forced    bool
	Timestamp time.Time
}

// Config holds engine configuration.
type Config struct {
	// Unit is the duration of one pmin/pmax second. Defaults to time.Second.
	Unit time.Duration

	// Logger is used for debug output. Nil disables it.
	Logger *slog.Logger

	// OnNotify is called after a notification was written.
	OnNotify func(Notification)

	// OnError is called when a timer-driven report fails.
	OnError func(path model.Path, err error)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{Unit: time.Second}
}

type observer struct {
	path  model.Path
	write WriteFunc

	// armGen is bumped whenever the timers are rearmed or stopped.
	armGen   uint64
	minTimer *time.Timer
	maxTimer *time.Timer
	recheck  *time.Timer

	pending    any
	hasPending bool

	// sendMu serializes writes to the stream.
	sendMu sync.Mutex
}

func (o *observer) stopTimers() {
	o.armGen++
	for _, t := range []*time.Timer{o.minTimer, o.maxTimer, o.recheck} {
		if t != nil {
			t.Stop()
		}
	}
	o.minTimer, o.maxTimer, o.recheck = nil, nil, nil
}

// Engine owns the active observers of a client node.
type Engine struct {
	mu        sync.Mutex
	tree      Dumper
	attrs     *attribute.Store
	config    Config
	observers map[string]*observer
	paused    bool
}

// NewEngine creates an engine reading values from tree.
func NewEngine(tree Dumper, attrs *attribute.Store, config Config) *Engine {
	if config.Unit <= 0 {
		config.Unit = time.Second
	}
	return &Engine{
		tree:      tree,
		attrs:     attrs,
		config:    config,
		observers: make(map[string]*observer),
	}
}

// EnableReport starts observing path and returns the current value, which
// the caller sends as the observe response. An existing observer for the
// path is torn down first.
func (e *Engine) EnableReport(ctx context.Context, path model.Path, write WriteFunc) (any, error) {
	path = e.normalize(path)
	value, err := e.tree.Dump(ctx, path)
	if err != nil && !isPartial(value) {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := path.Key()
	if old, ok := e.observers[key]; ok {
		old.stopTimers()
		e.debugLog("observer replaced", "path", key)
	}
	obs := &observer{path: path, write: write}
	e.observers[key] = obs

	rec := e.attrs.UpdateState(path, func(s *attribute.State) {
		s.Enable = true
		s.Cancel = false
		s.Mute = false
		s.LastReported = model.Clone(value)
	})
	if !e.paused {
		e.armLocked(obs, rec)
	}
	e.debugLog("observer armed", "path", key, "pmin", rec.Pmin, "pmax", rec.Pmax)
	return value, nil
}

// isPartial reports whether a failed composite read still produced a map.
func isPartial(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// DisableReport stops observing path. Calling it again is a no-op.
func (e *Engine) DisableReport(path model.Path) {
	path = e.normalize(path)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disableLocked(path)
}

func (e *Engine) disableLocked(path model.Path) {
	key := path.Key()
	if obs, ok := e.observers[key]; ok {
		obs.stopTimers()
		delete(e.observers, key)
		e.debugLog("observer removed", "path", key)
	}
	if e.attrs.Has(path) {
		e.attrs.UpdateState(path, func(s *attribute.State) {
			s.Cancel = true
			s.Enable = false
			s.Mute = true
		})
	}
}

// CancelAll removes every observer.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, obs := range e.observers {
		e.disableLocked(obs.path)
	}
}

// Observed returns the observed paths, sorted by key.
func (e *Engine) Observed() []model.Path {
	e.mu.Lock()
	defer e.mu.Unlock()
	paths := make([]model.Path, 0, len(e.observers))
	for _, obs := range e.observers {
		paths = append(paths, obs.path)
	}
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].Key() < paths[j].Key()
	})
	return paths
}

// IsObserved reports whether path has an active observer.
func (e *Engine) IsObserved(path model.Path) bool {
	path = e.normalize(path)
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.observers[path.Key()]
	return ok
}

// Pause stops all timers. Changes are kept pending until Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	for _, obs := range e.observers {
		obs.stopTimers()
	}
}

// Resume restarts the timers and evaluates changes kept while paused.
func (e *Engine) Resume() {
	type pendingCheck struct {
		obs *observer
		gen uint64
	}

	e.mu.Lock()
	e.paused = false
	var pending []pendingCheck
	for _, obs := range e.observers {
		rec := e.attrs.UpdateState(obs.path, func(s *attribute.State) { s.Mute = false })
		e.armLocked(obs, rec)
		if obs.hasPending {
			pending = append(pending, pendingCheck{obs: obs, gen: obs.armGen})
		}
	}
	e.mu.Unlock()

	for _, p := range pending {
		e.recheckPending(p.obs, p.gen)
	}
}

// OnResourceChanged implements model.ChangeSubscriber.
func (e *Engine) OnResourceChanged(path model.Path, value any) {
	e.CheckAndReport(path, value)
}

// CheckAndReport evaluates a new value of path against every observer on
// the path and its ancestors.
func (e *Engine) CheckAndReport(path model.Path, value any) {
	path = e.normalize(path)
	targets := []model.Path{path}
	for p := path; p.Level() != model.LevelObject; {
		p = p.Parent()
		targets = append(targets, p)
	}
	for _, target := range targets {
		e.check(target, path, value)
	}
}

func (e *Engine) check(target, leaf model.Path, value any) {
	e.mu.Lock()
	obs, ok := e.observers[target.Key()]
	if !ok {
		e.mu.Unlock()
		return
	}
	rec := e.attrs.Get(target)
	if !rec.Enable {
		e.mu.Unlock()
		return
	}
	if target != leaf {
		value = compose(rec.LastReported, target, leaf, value)
	}
	e.evaluateLocked(obs, rec, value)
}

// evaluateLocked decides on a new value for obs. It is called with e.mu
// held and releases it.
func (e *Engine) evaluateLocked(obs *observer, rec attribute.Record, value any) {
	if rec.Mute || e.paused {
		obs.pending = value
		obs.hasPending = true
		if obs.recheck == nil && !e.paused {
			gen := obs.armGen
			obs.recheck = time.AfterFunc(e.seconds(rec.Pmin), func() {
				e.recheckPending(obs, gen)
			})
		}
		e.mu.Unlock()
		return
	}
	if !ShouldReport(rec, value, rec.LastReported) {
		e.mu.Unlock()
		return
	}
	if rec.Pmin > 0 {
		e.attrs.UpdateState(obs.path, func(s *attribute.State) { s.Mute = true })
	}
	e.mu.Unlock()

	e.deliver(obs, value, false)
}

func (e *Engine) recheckPending(obs *observer, gen uint64) {
	e.mu.Lock()
	if !e.currentLocked(obs, gen) || !obs.hasPending {
		e.mu.Unlock()
		return
	}
	obs.recheck = nil
	value := obs.pending
	obs.pending, obs.hasPending = nil, false
	e.evaluateLocked(obs, e.attrs.Get(obs.path), value)
}

// deliver writes value to the stream of obs and rearms its timers.
func (e *Engine) deliver(obs *observer, value any, forced bool) {
	obs.sendMu.Lock()
	err := obs.write(value)
	obs.sendMu.Unlock()

	e.mu.Lock()
	if e.observers[obs.path.Key()] != obs {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.disableLocked(obs.path)
		e.mu.Unlock()
		e.reportError(obs.path, err)
		return
	}

	rec := e.attrs.UpdateState(obs.path, func(s *attribute.State) {
		s.LastReported = model.Clone(value)
		s.Mute = !forced && s.Mute
	})
	if !e.paused {
		e.armLocked(obs, rec)
	}
	e.mu.Unlock()

	e.debugLog("notification sent", "path", obs.path.Key(), "forced", forced)
	if e.config.OnNotify != nil {
		e.config.OnNotify(Notification{
			Path:      obs.path,
			Value:     value,
			Forced:    forced,
			Timestamp: time.Now(),
		})
	}
}

// armLocked restarts the timers of obs. Timers armed earlier become stale.
// A value kept pending is evaluated again after pmin.
func (e *Engine) armLocked(obs *observer, rec attribute.Record) {
	obs.stopTimers()
	gen := obs.armGen

	obs.minTimer = time.AfterFunc(e.seconds(rec.Pmin), func() {
		e.onMinTimer(obs, gen)
	})
	if rec.Pmax > 0 && rec.Pmax >= rec.Pmin {
		obs.maxTimer = time.AfterFunc(e.seconds(rec.Pmax), func() {
			e.onMaxTimer(obs, gen)
		})
	}
	if obs.hasPending {
		obs.recheck = time.AfterFunc(e.seconds(rec.Pmin), func() {
			e.recheckPending(obs, gen)
		})
	}
}

func (e *Engine) onMinTimer(obs *observer, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.currentLocked(obs, gen) {
		return
	}
	e.attrs.UpdateState(obs.path, func(s *attribute.State) { s.Mute = false })
}

func (e *Engine) onMaxTimer(obs *observer, gen uint64) {
	e.mu.Lock()
	if !e.currentLocked(obs, gen) {
		e.mu.Unlock()
		return
	}
	obs.pending, obs.hasPending = nil, false
	e.mu.Unlock()

	value, err := e.tree.Dump(context.Background(), obs.path)
	if err != nil && !isPartial(value) {
		e.reportError(obs.path, err)
		e.mu.Lock()
		if e.currentLocked(obs, gen) && !e.paused {
			e.armLocked(obs, e.attrs.Get(obs.path))
		}
		e.mu.Unlock()
		return
	}
	e.deliver(obs, value, true)
}

// currentLocked reports whether a timer armed at gen for obs may still act.
func (e *Engine) currentLocked(obs *observer, gen uint64) bool {
	return e.observers[obs.path.Key()] == obs && obs.armGen == gen
}

func (e *Engine) normalize(p model.Path) model.Path {
	return p.Normalize(e.tree.Resolver())
}

func (e *Engine) seconds(n int) time.Duration {
	return time.Duration(n) * e.config.Unit
}

func (e *Engine) reportError(path model.Path, err error) {
	e.debugLog("report failed", "path", path.Key(), "error", err)
	if e.config.OnError != nil {
		e.config.OnError(path, err)
	}
}

func (e *Engine) debugLog(msg string, args ...any) {
	if e.config.Logger != nil {
		e.config.Logger.Debug(msg, args...)
	}
}

// compose returns the composite value of target with leaf replaced.
func compose(last any, target, leaf model.Path, value any) any {
	m, _ := model.Clone(last).(map[string]any)
	if m == nil {
		m = make(map[string]any)
	}
	switch target.Level() {
	case model.LevelInstance:
		m[leaf.Resource] = value
	case model.LevelObject:
		iid := strconv.Itoa(leaf.Instance)
		inst, _ := m[iid].(map[string]any)
		if inst == nil {
			inst = make(map[string]any)
		}
		inst[leaf.Resource] = value
		m[iid] = inst
	}
	return m
}
