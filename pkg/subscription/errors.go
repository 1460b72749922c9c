package subscription

import "errors"

var (
	ErrNotFound         = errors.New("subscription not found")
	ErrDuplicateRow     = errors.New("subscription row already exists for lineage")
	ErrActiveRowExists  = errors.New("account already has an active subscription row")
	ErrMissingAccountID = errors.New("provider event is missing an account id")
	ErrMissingLineageID = errors.New("provider event is missing a lineage id")
	ErrUnknownOutcome   = errors.New("provider event carries an unknown outcome")
	ErrUnknownProvider  = errors.New("provider event carries an unknown provider")
	ErrMissingNote      = errors.New("manual provider event requires an audit note")
)
