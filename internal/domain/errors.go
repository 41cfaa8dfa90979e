package domain

import "errors"

// Kind classifies failures that are surfaced to callers.
type Kind string

const (
	KindInput       Kind = "input"
	KindResolution  Kind = "resolution"
	KindNoData      Kind = "no_data"
	KindDataQuality Kind = "data_quality"
	KindUnexpected  Kind = "unexpected"
)

// Error is a user-actionable failure with a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// InputError reports a missing or malformed request field.
func InputError(reason string) error { return &Error{Kind: KindInput, Reason: reason} }

// ResolutionError reports a resolution stage that yielded nothing.
func ResolutionError(reason string) error { return &Error{Kind: KindResolution, Reason: reason} }

// NoDataError reports that no station history could be fetched.
func NoDataError(reason string) error { return &Error{Kind: KindNoData, Reason: reason} }

// QualityError reports a data quality gate rejection.
func QualityError(reason string) error { return &Error{Kind: KindDataQuality, Reason: reason} }

// KindOf returns the Kind of err, or KindUnexpected for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
