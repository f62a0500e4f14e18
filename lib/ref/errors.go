package ref

import "errors"

var (
	// ErrNilReferent is raised when a nil element is handed to a referrer
	ErrNilReferent = errors.New("ref: nil referent")
	// ErrMixedEquivalence is returned when an identity policy is paired with a
	// value equivalence or the other way around
	ErrMixedEquivalence = errors.New("ref: policy and equivalence disagree on identity")
	// ErrQueueMismatch is returned when the queue can't serve the policy
	// (the time policy needs a *TimedQueue)
	ErrQueueMismatch = errors.New("ref: queue does not support policy")
	// ErrUnknownPolicy is returned when parsing an unknown policy name
	ErrUnknownPolicy = errors.New("ref: unknown policy")
)
