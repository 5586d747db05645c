package core

import (
	"errors"

	"plantguard.io/leaf-doctor/internal/inference"
	"plantguard.io/leaf-doctor/internal/store"
)

// Error kinds. Concrete errors wrap one of these; test with errors.Is.
var (
	ErrTransport         = inference.ErrTransport
	ErrMalformedResponse = inference.ErrMalformedResponse
	ErrStorage           = store.ErrStorage
	ErrValidation        = errors.New("validation error")
)
