package scoring

import (
	"errors"
	"fmt"
	"strings"
)

// Reason is the machine-readable cause of a rejected input.
type Reason string

const (
	ReasonDomainRange          Reason = "domain_range"
	ReasonExclusiveGroup       Reason = "exclusive_group"
	ReasonMissingDiscriminator Reason = "missing_discriminator"
)

var (
	ErrDomainRange          = errors.New("value outside declared domain")
	ErrExclusiveGroup       = errors.New("more than one option selected in exclusive group")
	ErrMissingDiscriminator = errors.New("required discriminator missing")
)

// Violation describes a single rejected field or group.
type Violation struct {
	Reason  Reason `json:"reason"`
	Field   string `json:"field,omitempty"`
	Group   string `json:"group,omitempty"`
	Message string `json:"message"`
}

// ValidationError is returned by every engine entry point when the raw input
// cannot be scored. No partial score accompanies it.
type ValidationError struct {
	Reason     Reason      `json:"reason"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		switch {
		case v.Group != "":
			msgs = append(msgs, fmt.Sprintf("group %s: %s", v.Group, v.Message))
		case v.Field != "":
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Field, v.Message))
		default:
			msgs = append(msgs, v.Message)
		}
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(msgs, "; "))
}

// Is matches the sentinel of any contained violation, so callers can use
// errors.Is(err, ErrExclusiveGroup) without unpacking the list.
func (e *ValidationError) Is(target error) bool {
	for _, v := range e.Violations {
		if sentinelFor(v.Reason) == target {
			return true
		}
	}
	return false
}

// Groups returns the identifiers of the exclusive groups that were violated.
func (e *ValidationError) Groups() []string {
	var groups []string
	for _, v := range e.Violations {
		if v.Reason == ReasonExclusiveGroup {
			groups = append(groups, v.Group)
		}
	}
	return groups
}

func sentinelFor(r Reason) error {
	switch r {
	case ReasonDomainRange:
		return ErrDomainRange
	case ReasonExclusiveGroup:
		return ErrExclusiveGroup
	case ReasonMissingDiscriminator:
		return ErrMissingDiscriminator
	}
	return nil
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

func validationError(vs []Violation) error {
	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Reason: vs[0].Reason, Violations: vs}
}

func outOfRange(field, format string, args ...interface{}) Violation {
	return Violation{Reason: ReasonDomainRange, Field: field, Message: fmt.Sprintf(format, args...)}
}

func missingDiscriminator(field, format string, args ...interface{}) Violation {
	return Violation{Reason: ReasonMissingDiscriminator, Field: field, Message: fmt.Sprintf(format, args...)}
}
