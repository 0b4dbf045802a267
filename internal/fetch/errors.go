// Copyright Peton Labs, 2026. All rights reserved.

package fetch

import (
	"errors"
	"fmt"
)

// ErrNoContent reports that every source, including the metadata
// fallback, came up empty. Callers treat it as terminal for the item.
var ErrNoContent = errors.New("fetch: no content found from any source")

// ErrorKind classifies a source failure for retry decisions.
type ErrorKind int

const (
	// KindTransient covers timeouts, connection resets, 5xx and 429
	// responses. Worth retrying against the same source.
	KindTransient ErrorKind = iota
	// KindPermanent covers 404s and malformed content. Retrying the
	// same source cannot help; move on to the next one.
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// SourceError wraps a failure from one content source with its name
// and retry classification.
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.Source, e.Err, e.Kind)
}

func (e *SourceError) Unwrap() error { return e.Err }

func transientErr(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindTransient, Err: err}
}

func permanentErr(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindPermanent, Err: err}
}

// isTransient reports whether err should be retried against the same
// source. Unclassified errors (network-level) count as transient.
func isTransient(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind == KindTransient
	}
	return true
}
