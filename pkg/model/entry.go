package model

import "context"

// Sentinel values reported in composite reads for resources that cannot be read.
const (
	Unreadable = "_unreadable_"
	Executable = "_exec_"
)

// ReadFunc produces the current value of an active resource.
type ReadFunc func(ctx context.Context) (any, error)

// WriteFunc applies a new value to an active resource.
type WriteFunc func(ctx context.Context, value any) error

// ExecFunc runs an executable resource with positional arguments.
type ExecFunc func(ctx context.Context, args []string) (any, error)

// Active is a resource backed by handlers instead of a stored value.
// The set of non-nil handlers determines the allowed operations.
type Active struct {
	Read  ReadFunc
	Write WriteFunc
	Exec  ExecFunc
}

// CanRead returns true if the resource has a read handler.
func (a *Active) CanRead() bool { return a.Read != nil }

// CanWrite returns true if the resource has a write handler.
func (a *Active) CanWrite() bool { return a.Write != nil }

// CanExecute returns true if the resource has an exec handler.
func (a *Active) CanExecute() bool { return a.Exec != nil }

func (a *Active) empty() bool {
	return a.Read == nil && a.Write == nil && a.Exec == nil
}

// placeholder returns the composite-read sentinel for a resource without
// a read handler.
func (a *Active) placeholder() string {
	if a.Exec != nil && a.Write == nil {
		return Executable
	}
	return Unreadable
}
