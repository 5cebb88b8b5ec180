package dao

import (
	"errors"

	"github.com/viant/taskd/model"
)

// Common, reusable DAO errors. ErrNotFound aliases the model error so that the
// ledger can surface it unchanged to callers.
var (
	// ErrNotFound is returned when the requested entity does not exist in the
	// underlying storage.
	ErrNotFound = model.ErrNotFound

	// ErrInvalidID indicates that the supplied ID/key is empty.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned when the caller attempts to persist a nil
	// pointer.
	ErrNilEntity = errors.New("dao: nil entity")
)
