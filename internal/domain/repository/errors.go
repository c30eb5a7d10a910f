package repository

import "errors"

var (
	// ErrCountryNotFound is returned when a country is not part of the catalog.
	ErrCountryNotFound = errors.New("country not found")

	// ErrCatalogEmpty is returned when no catalog has been persisted yet.
	ErrCatalogEmpty = errors.New("catalog is empty")

	// ErrObjectNotFound is returned when an object does not exist in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrQueueFull is returned when a task cannot be enqueued without blocking.
	ErrQueueFull = errors.New("prefetch queue is full")
)
