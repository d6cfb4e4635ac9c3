package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorFacilityMismatch is returned for cross-facility pairing attempts.
	ErrorFacilityMismatch = errors.New("bank account and daily payment belong to different facilities")

	// ErrorValidationFailed covers hard rule violations. Amount/date drift is
	// never an error; those are warnings on a valid result.
	ErrorValidationFailed = errors.New("validation failed")

	// ErrorConcurrencyConflict is returned when the re-check inside a writer
	// transaction finds a match row a concurrent writer committed after
	// validation passed.
	ErrorConcurrencyConflict = errors.New("concurrency conflict")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
