// Package sentinel holds the storage-level facts stores report. Services map
// them onto domain errors; stores never return domain errors themselves.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a unique key (nullifier, active registration) is taken.
	ErrConflict = errors.New("conflict")
)
