package model

import (
	"fmt"
	"strconv"
	"strings"
)

// NoInstance marks an object-level path.
const NoInstance = -1

// MaxID is the largest object, instance or resource identifier.
const MaxID = 65535

// Level is the granularity a path addresses.
type Level uint8

const (
	LevelObject Level = iota
	LevelInstance
	LevelResource
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelObject:
		return "object"
	case LevelInstance:
		return "instance"
	case LevelResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Resolver converts identifiers between numeric and symbolic forms.
// Implementations must be total and echo unknown input.
type Resolver interface {
	ObjectKey(id string) string
	ObjectID(key string) string
	ResourceKey(oid, id string) string
	ResourceID(oid, key string) string
}

// Path addresses an object, an instance, or a single resource.
// Object and Resource hold canonical symbolic keys.
type Path struct {
	Object   string
	Instance int
	Resource string
}

// ObjectPath returns a path to object oid.
func ObjectPath(oid string) Path {
	return Path{Object: oid, Instance: NoInstance}
}

// InstancePath returns a path to instance iid of object oid.
func InstancePath(oid string, iid int) Path {
	return Path{Object: oid, Instance: iid}
}

// ResourcePath returns a path to resource rid of instance iid.
func ResourcePath(oid string, iid int, rid string) Path {
	return Path{Object: oid, Instance: iid, Resource: rid}
}

// Level returns the granularity of the path.
func (p Path) Level() Level {
	switch {
	case p.Instance == NoInstance:
		return LevelObject
	case p.Resource == "":
		return LevelInstance
	default:
		return LevelResource
	}
}

// Key returns the canonical key: "obj", "obj/iid" or "obj/iid/rid".
func (p Path) Key() string {
	switch p.Level() {
	case LevelObject:
		return p.Object
	case LevelInstance:
		return p.Object + "/" + strconv.Itoa(p.Instance)
	default:
		return p.Object + "/" + strconv.Itoa(p.Instance) + "/" + p.Resource
	}
}

// String returns the key with a leading slash.
func (p Path) String() string {
	return "/" + p.Key()
}

// Parent returns the enclosing instance or object path.
// The parent of an object path is the path itself.
func (p Path) Parent() Path {
	switch p.Level() {
	case LevelResource:
		return InstancePath(p.Object, p.Instance)
	default:
		return ObjectPath(p.Object)
	}
}

// Contains reports whether q is p or lies below p.
func (p Path) Contains(q Path) bool {
	if p.Object != q.Object {
		return false
	}
	switch p.Level() {
	case LevelObject:
		return true
	case LevelInstance:
		return p.Instance == q.Instance
	default:
		return p == q
	}
}

// Numeric renders the path with numeric identifiers, as used on the wire.
func (p Path) Numeric(r Resolver) string {
	oid := r.ObjectID(p.Object)
	switch p.Level() {
	case LevelObject:
		return "/" + oid
	case LevelInstance:
		return "/" + oid + "/" + strconv.Itoa(p.Instance)
	default:
		return "/" + oid + "/" + strconv.Itoa(p.Instance) + "/" + r.ResourceID(p.Object, p.Resource)
	}
}

// Normalize converts the identifiers of p to canonical keys.
func (p Path) Normalize(r Resolver) Path {
	p.Object = r.ObjectKey(p.Object)
	if p.Resource != "" {
		p.Resource = r.ResourceKey(p.Object, p.Resource)
	}
	return p
}

// ParsePath parses "/3303/0/5700", "temperature/0" and similar forms.
// Numeric and symbolic identifiers may be mixed.
func ParsePath(r Resolver, s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrBadRequest)
	}
	parts := strings.Split(s, "/")
	if len(parts) > 3 {
		return Path{}, fmt.Errorf("%w: path %q has too many segments", ErrBadRequest, s)
	}
	for _, part := range parts {
		if part == "" {
			return Path{}, fmt.Errorf("%w: path %q has an empty segment", ErrBadRequest, s)
		}
	}

	p := ObjectPath(r.ObjectKey(parts[0]))
	if len(parts) > 1 {
		iid, err := ParseInstanceID(parts[1])
		if err != nil {
			return Path{}, err
		}
		p.Instance = iid
	}
	if len(parts) > 2 {
		p.Resource = r.ResourceKey(p.Object, parts[2])
	}
	return p, nil
}

// ParseInstanceID parses an instance identifier.
func ParseInstanceID(s string) (int, error) {
	iid, err := strconv.Atoi(s)
	if err != nil || iid < 0 || iid > MaxID {
		return 0, fmt.Errorf("%w: invalid instance id %q", ErrBadRequest, s)
	}
	return iid, nil
}
