package catalog

import "errors"

var (
	ErrPlanNotFound             = errors.New("plan not found")
	ErrUnknownResource          = errors.New("unknown resource kind for plan")
	ErrFailedToLoadPlans        = errors.New("failed to load plan catalog")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
)
