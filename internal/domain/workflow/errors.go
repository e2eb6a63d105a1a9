package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound means the referenced workflow is no longer present. Events
	// carrying it are stale: callers log and drop, never crash.
	ErrNotFound = errors.New("workflow not found")

	// ErrDuplicateKey means a creation collided on workflow id. Ids derive
	// from an externally-unique source, so this indicates caller misuse.
	ErrDuplicateKey = errors.New("workflow id already exists")

	// ErrIndexOutOfRange means an item or candidate index does not address
	// the workflow's items. Rejected, never silently dropped.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrImmutable means a mutation targeted a finalized workflow.
	ErrImmutable = errors.New("workflow already finalized")
)

// MissingSelectionsError reports a finalize attempted before completeness.
// The workflow is left untouched; Indices enumerates every unresolved item.
type MissingSelectionsError struct {
	Indices []int
}

func (e *MissingSelectionsError) Error() string {
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = strconv.Itoa(idx)
	}
	return "missing selections for items " + strings.Join(parts, ", ")
}

// ExternalCallError reports a failed or timed-out collaborator call. The
// workflow's persisted state is exactly as it was before the call; the
// operation is retryable.
type ExternalCallError struct {
	Op  string
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call %s failed: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// StorageError reports an unreachable persistence layer. The mutation was
// rejected and in-memory state was not advanced; retry the whole operation.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
