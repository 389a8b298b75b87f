package repository

import "errors"

var (
	// ErrAssetNotFound is returned when an asset cannot be found.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrDuplicateAsset is returned when attempting to create an asset that already exists.
	ErrDuplicateAsset = errors.New("asset already exists")

	// ErrStatusConflict is returned when a conditional status update finds the
	// asset in a status from which the requested transition is not allowed.
	ErrStatusConflict = errors.New("asset status conflict")

	// ErrObjectNotFound is returned when an object does not exist in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)
