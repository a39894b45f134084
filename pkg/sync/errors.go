package sync

import "errors"

var (
	// ErrNotFound is returned when an operation targets an id that is
	// not present in the collection.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrentMutation is returned when a second operation starts
	// on an id whose previous operation is still in flight. The UI is
	// expected to disable controls while pending, so hitting this is a
	// contract violation, not a steady-state occurrence.
	ErrConcurrentMutation = errors.New("operation already pending for record")

	// ErrAssetUpload classifies blob store failures.
	ErrAssetUpload = errors.New("asset upload failed")

	// ErrPersistence classifies record store failures.
	ErrPersistence = errors.New("persistence failed")
)
