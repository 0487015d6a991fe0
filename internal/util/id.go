package util

import "github.com/google/uuid"

// NewID returns a new random UUID string used for run correlation.
func NewID() string { return uuid.NewString() }
