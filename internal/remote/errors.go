package remote

import (
	"errors"
	"fmt"

	"github.com/fairwaylabs/caddie/internal/model"
)

// ErrUnavailable indicates the remote store could not be reached. Queue
// items that fail with it stay queued for a later drain.
var ErrUnavailable = errors.New("remote store unavailable")

// IsUnavailable reports whether err means the remote could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ErrNotFound indicates the requested row does not exist remotely.
var ErrNotFound = errors.New("not found in remote store")

// IsNotFound reports whether err is a remote not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrClientTooOld indicates the remote schema requires a newer client.
// Sync is refused entirely rather than writing rows the server side
// no longer understands.
var ErrClientTooOld = errors.New("client version below remote minimum")

// TranslationError describes one row that could not be converted between
// the local and remote field layouts. The row is skipped and reported;
// it never aborts the rest of a sync batch.
type TranslationError struct {
	Entity model.EntityKind
	ID     string
	Field  string
	Err    error
}

func (e *TranslationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cannot translate %s %s field %q: %v", e.Entity, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("cannot translate %s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}
