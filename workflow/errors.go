package workflow

import (
	"errors"
	"fmt"
)

// ErrDuplicateIdentifier is returned by Store implementations when a local
// write collides on a natural key.
var ErrDuplicateIdentifier = errors.New("duplicate identifier")

// ValidationError reports a malformed or missing input field. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports a missing attribute-type or role identifier.
// Fatal at first use, never retried.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return "configuration: missing " + e.Setting
}

// DuplicateError reports that the entity already exists by natural key.
// Nothing was created, so no compensation is needed.
type DuplicateError struct {
	NIN        string
	Identifier string
}

func (e *DuplicateError) Error() string {
	if e.Identifier != "" {
		return "duplicate team member identifier " + e.Identifier
	}
	return "team member already provisioned for NIN " + e.NIN
}

// LocationNotFoundError reports that the referenced facility is absent.
// Raised before any upstream write occurs.
type LocationNotFoundError struct {
	HfrCode string
}

func (e *LocationNotFoundError) Error() string {
	return "location not found for HFR code " + e.HfrCode
}

// UpstreamRejectedError reports a failed upstream call, tagged with the
// saga step it happened in. SubCode distinguishes partial attribute
// failures (1=NIN, 2=email, 3=phone).
type UpstreamRejectedError struct {
	Step    string
	SubCode int
	Err     error
}

func (e *UpstreamRejectedError) Error() string {
	if e.SubCode != 0 {
		return fmt.Sprintf("step %s rejected upstream (sub-code %d): %v", e.Step, e.SubCode, e.Err)
	}
	return fmt.Sprintf("step %s rejected upstream: %v", e.Step, e.Err)
}

func (e *UpstreamRejectedError) Unwrap() error { return e.Err }

// PersistenceError reports a local write failure after the upstream chain
// succeeded. The upstream write is NOT undone; this is the one accepted
// inconsistency, logged and surfaced.
type PersistenceError struct {
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("step %s local persistence failed: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
