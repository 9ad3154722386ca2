package entity

import "errors"

var (
	// ErrValidation marks a report the caller must fix; it is never retried.
	ErrValidation = errors.New("validation error")

	// ErrStaleReport is returned when a report does not advance the stored state.
	ErrStaleReport = errors.New("stale report")

	ErrResolutionUnavailable = errors.New("geo resolution unavailable")
	ErrResolutionInvalid     = errors.New("geo resolution invalid input")

	ErrDriverNotFound = errors.New("driver not found")

	ErrIndexMaintenance = errors.New("availability index maintenance failed")
	ErrPublish          = errors.New("event publish failed")

	// ErrBackpressure means the event backlog is saturated; the report was
	// not committed and can be sent again later.
	ErrBackpressure = errors.New("event backlog saturated")
)

var (
	ErrDriverIDRequired    = errors.New("driver id is required")
	ErrAvailableRequired   = errors.New("available is required")
	ErrTimestampRequired   = errors.New("reported_at is required")
	ErrTimestampInFuture   = errors.New("reported_at is in the future")
	ErrIncompleteCoords    = errors.New("latitude and longitude must be sent together")
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
	ErrNegativeAccuracy    = errors.New("accuracy must be greater than or equal to zero")
	ErrInvalidGeoSource    = errors.New("invalid geo source")
)

// IsRejection reports whether err should be surfaced to the reporting client.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrResolutionInvalid)
}
