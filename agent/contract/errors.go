package contract

import "errors"

var (
	ErrModelInvoke  = errors.New("model invoke failed")
	ErrToolNotFound = errors.New("tool not found")
	ErrValidation   = errors.New("validation failed")
	ErrStageCatalog = errors.New("stage catalog invalid")
)
