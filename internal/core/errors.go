package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks bad input detected before any external call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransformationFailed marks a failed call to the cleanup or synthesis service.
	ErrTransformationFailed = errors.New("transformation failed")
	// ErrPersistenceFailed marks a failed write of a checkpoint or final artifact.
	ErrPersistenceFailed = errors.New("persistence failed")
)

// TransformationError reports which chunk failed and why.
type TransformationError struct {
	ChunkIndex int
	Cause      error
}

// NewTransformationError wraps cause for the chunk at index.
func NewTransformationError(index int, cause error) *TransformationError {
	return &TransformationError{ChunkIndex: index, Cause: cause}
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("%s: chunk %d: %v", ErrTransformationFailed, e.ChunkIndex, e.Cause)
}

// Is lets errors.Is match ErrTransformationFailed.
func (e *TransformationError) Is(target error) bool {
	return target == ErrTransformationFailed
}

func (e *TransformationError) Unwrap() error {
	return e.Cause
}

// PersistenceError reports a failed filesystem operation on pipeline state.
type PersistenceError struct {
	Op    string
	Path  string
	Cause error
}

// NewPersistenceError wraps cause for op on path.
func NewPersistenceError(op, path string, cause error) *PersistenceError {
	return &PersistenceError{Op: op, Path: path, Cause: cause}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrPersistenceFailed, e.Op, e.Path, e.Cause)
}

// Is lets errors.Is match ErrPersistenceFailed.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailed
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
