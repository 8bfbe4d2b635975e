package association

import (
	"errors"
	"fmt"
)

var (
	// ErrOwnerNotFound is returned by fetchers when the owner identity no longer
	// resolves in the backing store. Proxies turn it into an absent Result.
	ErrOwnerNotFound = errors.New("association: owner not found")

	// ErrInvalidDescriptor is wrapped by every InvalidDescriptorError.
	ErrInvalidDescriptor = errors.New("association: invalid descriptor")

	// ErrUnknownAssociation is returned when a name has no descriptor in the owner's table.
	ErrUnknownAssociation = errors.New("association: unknown association")

	// ErrArityMismatch is returned when a collection operation is used on a singular
	// association or the other way around.
	ErrArityMismatch = errors.New("association: arity mismatch")
)

// InvalidDescriptorError reports malformed association metadata.
type InvalidDescriptorError struct {
	Owner string
	Name  string
	Err   error
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("association: invalid descriptor %s.%s: %v", e.Owner, e.Name, e.Err)
}

// Unwrap exposes both the sentinel and the underlying validation error.
func (e *InvalidDescriptorError) Unwrap() []error {
	return []error{ErrInvalidDescriptor, e.Err}
}

// IsOwnerNotFound reports whether err signals a dangling owner.
func IsOwnerNotFound(err error) bool {
	return errors.Is(err, ErrOwnerNotFound)
}
