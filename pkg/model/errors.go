package model

import (
	"errors"
	"fmt"
	"strings"
)

// Resource tree errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnreadable   = errors.New("unreadable")
	ErrUnwritable   = errors.New("unwritable")
	ErrUnexecutable = errors.New("unexecutable")
	ErrTypeMismatch = errors.New("type mismatch")
	ErrBadRequest   = errors.New("bad request")
	ErrNotAllowed   = errors.New("not allowed")
	ErrExists       = errors.New("already exists")
)

var sentinels = []error{
	ErrNotFound,
	ErrUnreadable,
	ErrUnwritable,
	ErrUnexecutable,
	ErrTypeMismatch,
	ErrBadRequest,
	ErrNotAllowed,
	ErrExists,
}

// PartialWriteError reports an instance write that failed after some
// resources were already applied.
type PartialWriteError struct {
	Applied []string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write (applied %s): %v", strings.Join(e.Applied, ","), e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// handlerError converts a handler failure to a tree error.
// Errors already carrying a tree sentinel are kept as they are.
func handlerError(path Path, op string, err error) error {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err
		}
	}
	return fmt.Errorf("%w: %s %s: %v", ErrBadRequest, op, path, err)
}
