package cache

import (
	"fmt"

	stackerrors "github.com/matzehuels/stackscan/pkg/errors"
)

// CorruptionError reports a cache entry that exists but cannot be decoded.
// [Results] never returns it to callers: a corrupt entry is logged and
// treated as a miss.
type CorruptionError struct {
	Key string
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt cache entry %s: %v", e.Key, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Code implements the coded-error convention of package errors.
func (e *CorruptionError) Code() stackerrors.Code { return stackerrors.ErrCodeCacheCorrupt }
