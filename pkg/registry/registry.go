package registry

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry errors.
var (
	ErrInvalidDefinition = errors.New("invalid object definition")
	ErrDuplicateName     = errors.New("duplicate object name")
)

// ObjectDef describes one object type and its resources.
type ObjectDef struct {
	ID        int            `yaml:"id"`
	Name      string         `yaml:"name"`
	Resources map[int]string `yaml:"resources"`
}

type objectEntry struct {
	id        string
	key       string
	resByID   map[string]string
	resByName map[string]string
}

// Resolver converts identifiers between numeric and symbolic forms.
// All methods are total: unknown input is returned unchanged.
type Resolver struct {
	mu     sync.RWMutex
	byID   map[string]*objectEntry
	byName map[string]*objectEntry
}

// New creates a resolver preloaded with the built-in objects.
func New() *Resolver {
	r := &Resolver{
		byID:   make(map[string]*objectEntry),
		byName: make(map[string]*objectEntry),
	}
	for _, def := range builtinObjects {
		_ = r.Define(def)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultResolver *Resolver
)

// Default returns a shared resolver with only the built-in objects.
// Callers that load custom definitions should use New instead.
func Default() *Resolver {
	defaultOnce.Do(func() {
		defaultResolver = New()
	})
	return defaultResolver
}

// Define adds or replaces an object definition.
func (r *Resolver) Define(def ObjectDef) error {
	if def.ID < 0 || def.ID > 65535 {
		return fmt.Errorf("%w: object id %d out of range", ErrInvalidDefinition, def.ID)
	}
	if def.Name == "" {
		return fmt.Errorf("%w: object %d has no name", ErrInvalidDefinition, def.ID)
	}
	if _, err := strconv.Atoi(def.Name); err == nil {
		return fmt.Errorf("%w: object name %q is numeric", ErrInvalidDefinition, def.Name)
	}

	e := &objectEntry{
		id:        strconv.Itoa(def.ID),
		key:       def.Name,
		resByID:   make(map[string]string, len(def.Resources)),
		resByName: make(map[string]string, len(def.Resources)),
	}
	for id, name := range def.Resources {
		if name == "" {
			return fmt.Errorf("%w: resource %d of %s has no name", ErrInvalidDefinition, id, def.Name)
		}
		rid := strconv.Itoa(id)
		e.resByID[rid] = name
		e.resByName[name] = rid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[def.Name]; ok && existing.id != e.id {
		return fmt.Errorf("%w: %s already maps to %s", ErrDuplicateName, def.Name, existing.id)
	}
	if old, ok := r.byID[e.id]; ok {
		delete(r.byName, old.key)
	}
	r.byID[e.id] = e
	r.byName[e.key] = e
	return nil
}

// ObjectKey returns the symbolic key for an object id.
func (r *Resolver) ObjectKey(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byID[id]; ok {
		return e.key
	}
	return id
}

// ObjectID returns the numeric id for an object key.
func (r *Resolver) ObjectID(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[key]; ok {
		return e.id
	}
	return key
}

// ResourceKey returns the symbolic key for resource id within object oid.
// The object may be given in either form.
func (r *Resolver) ResourceKey(oid, id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.lookup(oid); e != nil {
		if name, ok := e.resByID[id]; ok {
			return name
		}
	}
	return id
}

// ResourceID returns the numeric id for resource key within object oid.
func (r *Resolver) ResourceID(oid, key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.lookup(oid); e != nil {
		if id, ok := e.resByName[key]; ok {
			return id
		}
	}
	return key
}

func (r *Resolver) lookup(oid string) *objectEntry {
	if e, ok := r.byName[oid]; ok {
		return e
	}
	return r.byID[oid]
}

type yamlFile struct {
	Objects []ObjectDef `yaml:"objects"`
}

// LoadYAML reads custom object definitions and adds them to the resolver.
func (r *Resolver) LoadYAML(rd io.Reader) error {
	var f yamlFile
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode object definitions: %w", err)
	}
	for _, def := range f.Objects {
		if err := r.Define(def); err != nil {
			return err
		}
	}
	return nil
}
