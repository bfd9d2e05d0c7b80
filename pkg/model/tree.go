package model

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// ChangeSubscriber is notified after a resource was read or written
// successfully.
type ChangeSubscriber interface {
	// OnResourceChanged is called with the resource path and its value.
	OnResourceChanged(path Path, value any)
}

// Tree holds the object, instance and resource entries of a client node.
// An entry is either a plain value or an *Active.
//
// Handlers of active resources run without holding the tree lock. Code that
// mutates the tree after a handler returns re-validates the path first.
type Tree struct {
	mu       sync.RWMutex
	resolver Resolver
	objects  map[string]map[int]map[string]any

	subscribers []ChangeSubscriber
}

// NewTree creates an empty tree using r to normalize identifiers.
func NewTree(r Resolver) *Tree {
	return &Tree{
		resolver: r,
		objects:  make(map[string]map[int]map[string]any),
	}
}

// Resolver returns the identifier resolver of the tree.
func (t *Tree) Resolver() Resolver {
	return t.resolver
}

// InitResource installs resources into instance iid of object oid, creating
// both if absent. resources must be a map keyed by resource id (string or
// int). Each value is a plain value or an *Active. A bare function is
// rejected with ErrTypeMismatch. Nothing is installed if any entry is
// invalid.
func (t *Tree) InitResource(oid string, iid int, resources any) error {
	if iid < 0 || iid > MaxID {
		return fmt.Errorf("%w: invalid instance id %d", ErrBadRequest, iid)
	}
	okey := t.resolver.ObjectKey(oid)

	var raw map[string]any
	switch m := resources.(type) {
	case map[string]any:
		raw = m
	case map[int]any:
		raw = make(map[string]any, len(m))
		for id, v := range m {
			raw[strconv.Itoa(id)] = v
		}
	default:
		return fmt.Errorf("%w: resources must be a map, got %T", ErrTypeMismatch, resources)
	}
	if raw == nil {
		return fmt.Errorf("%w: resources must be a map, got nil", ErrTypeMismatch)
	}

	entries := make(map[string]any, len(raw))
	for id, v := range raw {
		e, err := newEntry(v)
		if err != nil {
			return fmt.Errorf("resource %s/%d/%s: %w", okey, iid, id, err)
		}
		entries[t.resolver.ResourceKey(okey, id)] = e
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.objects[okey]
	if !ok {
		obj = make(map[int]map[string]any)
		t.objects[okey] = obj
	}
	inst, ok := obj[iid]
	if !ok {
		inst = make(map[string]any, len(entries))
		obj[iid] = inst
	}
	for rid, e := range entries {
		inst[rid] = e
	}
	return nil
}

func newEntry(v any) (any, error) {
	switch a := v.(type) {
	case *Active:
		if a == nil || a.empty() {
			return nil, fmt.Errorf("%w: active resource without handlers", ErrTypeMismatch)
		}
		cp := *a
		return &cp, nil
	case Active:
		if a.empty() {
			return nil, fmt.Errorf("%w: active resource without handlers", ErrTypeMismatch)
		}
		return &a, nil
	}
	return normalizeValue(v)
}

// Classify returns the level of p and whether it exists.
func (t *Tree) Classify(p Path) (Level, bool) {
	p = p.Normalize(t.resolver)

	t.mu.RLock()
	defer t.mu.RUnlock()

	obj, ok := t.objects[p.Object]
	if !ok {
		return p.Level(), false
	}
	if p.Level() == LevelObject {
		return LevelObject, true
	}
	inst, ok := obj[p.Instance]
	if !ok {
		return p.Level(), false
	}
	if p.Level() == LevelInstance {
		return LevelInstance, true
	}
	_, ok = inst[p.Resource]
	return LevelResource, ok
}

// Exists reports whether p is present in the tree.
func (t *Tree) Exists(p Path) bool {
	_, ok := t.Classify(p)
	return ok
}

// KindAt returns the kind of the plain value at p. Active resources
// report KindInvalid.
func (t *Tree) KindAt(p Path) (Kind, bool) {
	e, ok := t.entry(p.Normalize(t.resolver))
	if !ok {
		return KindInvalid, false
	}
	if _, active := e.(*Active); active {
		return KindInvalid, true
	}
	return KindOf(e), true
}

// entry returns the entry at resource path p.
func (t *Tree) entry(p Path) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.objects[p.Object][p.Instance][p.Resource]
	return e, ok
}

// instanceSnapshot returns a shallow copy of the entries of an instance.
func (t *Tree) instanceSnapshot(p Path) (map[string]any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	inst, ok := t.objects[p.Object][p.Instance]
	if !ok {
		return nil, false
	}
	cp := make(map[string]any, len(inst))
	for k, v := range inst {
		cp[k] = v
	}
	return cp, true
}

// instanceIDs returns the sorted instance ids of object oid.
func (t *Tree) instanceIDs(oid string) ([]int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obj, ok := t.objects[oid]
	if !ok {
		return nil, false
	}
	ids := make([]int, 0, len(obj))
	for iid := range obj {
		ids = append(ids, iid)
	}
	sort.Ints(ids)
	return ids, true
}

// Read returns the value at p. Object and instance reads return nested maps
// keyed by instance id and resource key. In composite reads a resource
// without a read handler reports Unreadable or Executable, and a failing
// handler is left out of the map while the first such error is returned
// with the partial result.
//
// Successful reads of resources notify change subscribers.
func (t *Tree) Read(ctx context.Context, p Path) (any, error) {
	return t.read(ctx, p.Normalize(t.resolver), true)
}

// Dump reads like Read without notifying change subscribers.
func (t *Tree) Dump(ctx context.Context, p Path) (any, error) {
	return t.read(ctx, p.Normalize(t.resolver), false)
}

func (t *Tree) read(ctx context.Context, p Path, notify bool) (any, error) {
	switch p.Level() {
	case LevelResource:
		e, ok := t.entry(p)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		v, err := readEntry(ctx, p, e)
		if err != nil {
			return nil, err
		}
		if notify {
			t.notifyChanged(p, v)
		}
		return v, nil

	case LevelInstance:
		entries, ok := t.instanceSnapshot(p)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return t.readInstance(ctx, p, entries, notify)

	default:
		ids, ok := t.instanceIDs(p.Object)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		result := make(map[string]any, len(ids))
		var firstErr error
		for _, iid := range ids {
			ip := InstancePath(p.Object, iid)
			entries, ok := t.instanceSnapshot(ip)
			if !ok {
				continue // deleted meanwhile
			}
			m, err := t.readInstance(ctx, ip, entries, notify)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			result[strconv.Itoa(iid)] = m
		}
		return result, firstErr
	}
}

func (t *Tree) readInstance(ctx context.Context, p Path, entries map[string]any, notify bool) (map[string]any, error) {
	result := make(map[string]any, len(entries))
	var firstErr error
	for _, rid := range sortedKeys(entries) {
		e := entries[rid]
		if a, ok := e.(*Active); ok && !a.CanRead() {
			result[rid] = a.placeholder()
			continue
		}
		rp := ResourcePath(p.Object, p.Instance, rid)
		v, err := readEntry(ctx, rp, e)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result[rid] = v
		if notify {
			t.notifyChanged(rp, v)
		}
	}
	return result, firstErr
}

func readEntry(ctx context.Context, p Path, e any) (any, error) {
	a, ok := e.(*Active)
	if !ok {
		return Clone(e), nil
	}
	if !a.CanRead() {
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, p)
	}
	return invoke(p, "read", func() (any, error) {
		return a.Read(ctx)
	})
}

// Write stores value at p. Resource writes need a write handler or a
// value of the same kind as the stored one. Instance writes take a map;
// every key is validated before any is applied. Writing an object is not
// allowed.
func (t *Tree) Write(ctx context.Context, p Path, value any) error {
	p = p.Normalize(t.resolver)

	switch p.Level() {
	case LevelObject:
		return fmt.Errorf("%w: write to object %s", ErrNotAllowed, p)
	case LevelInstance:
		return t.writeInstance(ctx, p, value)
	}

	e, ok := t.entry(p)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	v, err := checkWrite(p, e, value)
	if err != nil {
		return err
	}
	if err := t.applyWrite(ctx, p, e, v); err != nil {
		return err
	}
	t.notifyChanged(p, v)
	return nil
}

type pendingWrite struct {
	path  Path
	entry any
	value any
}

func (t *Tree) writeInstance(ctx context.Context, p Path, value any) error {
	var values map[string]any
	switch m := value.(type) {
	case map[string]any:
		values = m
	case map[int]any:
		values = make(map[string]any, len(m))
		for id, v := range m {
			values[strconv.Itoa(id)] = v
		}
	default:
		return fmt.Errorf("%w: instance write requires a map, got %T", ErrTypeMismatch, value)
	}

	entries, ok := t.instanceSnapshot(p)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	writes := make([]pendingWrite, 0, len(values))
	for id, v := range values {
		rid := t.resolver.ResourceKey(p.Object, id)
		rp := ResourcePath(p.Object, p.Instance, rid)
		e, ok := entries[rid]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, rp)
		}
		nv, err := checkWrite(rp, e, v)
		if err != nil {
			return err
		}
		writes = append(writes, pendingWrite{path: rp, entry: e, value: nv})
	}
	sort.Slice(writes, func(i, j int) bool {
		return writes[i].path.Resource < writes[j].path.Resource
	})

	applied := make([]string, 0, len(writes))
	for _, w := range writes {
		if err := t.applyWrite(ctx, w.path, w.entry, w.value); err != nil {
			if len(applied) == 0 {
				return err
			}
			return &PartialWriteError{Applied: applied, Err: err}
		}
		applied = append(applied, w.path.Resource)
		t.notifyChanged(w.path, w.value)
	}
	return nil
}

// checkWrite validates value against entry and returns the value to store.
func checkWrite(p Path, e any, value any) (any, error) {
	if a, ok := e.(*Active); ok {
		if !a.CanWrite() {
			return nil, fmt.Errorf("%w: %s", ErrUnwritable, p)
		}
		return value, nil
	}
	nv, err := normalizeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	if have, got := KindOf(e), KindOf(nv); have != got {
		return nil, fmt.Errorf("%w: %s holds %s, got %s", ErrTypeMismatch, p, have, got)
	}
	return nv, nil
}

func (t *Tree) applyWrite(ctx context.Context, p Path, e any, v any) error {
	if a, ok := e.(*Active); ok {
		_, err := invoke(p, "write", func() (any, error) {
			return nil, a.Write(ctx, v)
		})
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	inst, ok := t.objects[p.Object][p.Instance]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if _, ok := inst[p.Resource]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	inst[p.Resource] = Clone(v)
	return nil
}

// Execute runs the exec handler of the resource at p with args.
func (t *Tree) Execute(ctx context.Context, p Path, args []string) (any, error) {
	p = p.Normalize(t.resolver)
	if p.Level() != LevelResource {
		return nil, fmt.Errorf("%w: execute on %s %s", ErrNotAllowed, p.Level(), p)
	}
	e, ok := t.entry(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	a, ok := e.(*Active)
	if !ok || !a.CanExecute() {
		return nil, fmt.Errorf("%w: %s", ErrUnexecutable, p)
	}
	argv := append([]string(nil), args...)
	return invoke(p, "execute", func() (any, error) {
		return a.Exec(ctx, argv)
	})
}

// CreateInstance adds instance iid to an existing object.
func (t *Tree) CreateInstance(oid string, iid int, values map[string]any) error {
	okey := t.resolver.ObjectKey(oid)
	t.mu.RLock()
	obj, ok := t.objects[okey]
	_, exists := obj[iid]
	t.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: object %s", ErrNotFound, okey)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrExists, InstancePath(okey, iid))
	}
	if values == nil {
		values = map[string]any{}
	}
	return t.InitResource(okey, iid, values)
}

// NextInstanceID returns the lowest instance id not used by object oid.
func (t *Tree) NextInstanceID(oid string) int {
	okey := t.resolver.ObjectKey(oid)
	t.mu.RLock()
	defer t.mu.RUnlock()
	obj := t.objects[okey]
	for iid := 0; iid <= MaxID; iid++ {
		if _, ok := obj[iid]; !ok {
			return iid
		}
	}
	return NoInstance
}

// DeleteInstance removes the instance at p. The object itself stays.
func (t *Tree) DeleteInstance(p Path) error {
	p = p.Normalize(t.resolver)
	if p.Level() != LevelInstance {
		return fmt.Errorf("%w: delete on %s %s", ErrNotAllowed, p.Level(), p)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.objects[p.Object]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if _, ok := obj[p.Instance]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	delete(obj, p.Instance)
	return nil
}

// Objects lists every instance path, and object paths for objects without
// instances, ordered by numeric object id.
func (t *Tree) Objects() []Path {
	t.mu.RLock()
	defer t.mu.RUnlock()

	oids := make([]string, 0, len(t.objects))
	for oid := range t.objects {
		oids = append(oids, oid)
	}
	t.sortObjects(oids)

	var paths []Path
	for _, oid := range oids {
		obj := t.objects[oid]
		if len(obj) == 0 {
			paths = append(paths, ObjectPath(oid))
			continue
		}
		ids := make([]int, 0, len(obj))
		for iid := range obj {
			ids = append(ids, iid)
		}
		sort.Ints(ids)
		for _, iid := range ids {
			paths = append(paths, InstancePath(oid, iid))
		}
	}
	return paths
}

// Children lists the instance and resource paths below p.
func (t *Tree) Children(p Path) []Path {
	p = p.Normalize(t.resolver)
	if p.Level() == LevelResource {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	obj, ok := t.objects[p.Object]
	if !ok {
		return nil
	}
	var ids []int
	if p.Level() == LevelInstance {
		if _, ok := obj[p.Instance]; !ok {
			return nil
		}
		ids = []int{p.Instance}
	} else {
		for iid := range obj {
			ids = append(ids, iid)
		}
		sort.Ints(ids)
	}

	var paths []Path
	for _, iid := range ids {
		if p.Level() == LevelObject {
			paths = append(paths, InstancePath(p.Object, iid))
		}
		rids := make([]string, 0, len(obj[iid]))
		for rid := range obj[iid] {
			rids = append(rids, rid)
		}
		t.sortResources(p.Object, rids)
		for _, rid := range rids {
			paths = append(paths, ResourcePath(p.Object, iid, rid))
		}
	}
	return paths
}

func (t *Tree) sortObjects(oids []string) {
	sort.Slice(oids, func(i, j int) bool {
		return idLess(t.resolver.ObjectID(oids[i]), t.resolver.ObjectID(oids[j]))
	})
}

func (t *Tree) sortResources(oid string, rids []string) {
	sort.Slice(rids, func(i, j int) bool {
		return idLess(t.resolver.ResourceID(oid, rids[i]), t.resolver.ResourceID(oid, rids[j]))
	})
}

// idLess orders numeric ids numerically and before symbolic ones.
func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// Subscribe registers a change subscriber.
func (t *Tree) Subscribe(sub ChangeSubscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, sub)
}

// Unsubscribe removes a change subscriber.
func (t *Tree) Unsubscribe(sub ChangeSubscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subscribers {
		if s == sub {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			return
		}
	}
}

func (t *Tree) notifyChanged(p Path, value any) {
	t.mu.RLock()
	subs := make([]ChangeSubscriber, len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.RUnlock()

	for _, sub := range subs {
		sub.OnResourceChanged(p, Clone(value))
	}
}

// invoke runs a handler, converting panics and foreign errors to
// ErrBadRequest.
func invoke(p Path, op string, fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("%w: %s %s panicked: %v", ErrBadRequest, op, p, r)
		}
	}()
	v, err = fn()
	if err != nil {
		return nil, handlerError(p, op, err)
	}
	return v, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
