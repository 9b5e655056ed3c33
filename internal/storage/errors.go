package storage

import dErrors "arbiter/pkg/domain-errors"

// ErrNotFound keeps archive misses consistent across the in-memory and
// Postgres implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "assessment not found")
