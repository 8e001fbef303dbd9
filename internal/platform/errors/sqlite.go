package errors

// SQLite-specific helpers for mapping driver errors to project ErrorCode,
// extracting fields, and retry semantics. Mirrors the shape of a
// Postgres-backed errors.go but targets the single local database file
// this engine uses (mattn/go-sqlite3).

import (
	"context"
	stderrs "errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ExtractSQLiteError returns (sqlite3.Error, true) if the root cause is a sqlite3.Error
func ExtractSQLiteError(err error) (sqlite3.Error, bool) {
	var se sqlite3.Error
	if stderrs.As(Root(err), &se) {
		return se, true
	}
	return sqlite3.Error{}, false
}

// IsExtendedCode reports whether err is a sqlite3.Error with the given extended code
func IsExtendedCode(err error, code sqlite3.ErrNoExtended) bool {
	se, ok := ExtractSQLiteError(err)
	return ok && se.ExtendedCode == code
}

// IsDuplicateKey reports whether the error is a unique constraint violation
func IsDuplicateKey(err error) bool {
	se, ok := ExtractSQLiteError(err)
	return ok && se.Code == sqlite3.ErrConstraint
}

// IsBusy reports whether the error is SQLITE_BUSY (another writer holds the lock)
func IsBusy(err error) bool {
	se, ok := ExtractSQLiteError(err)
	return ok && se.Code == sqlite3.ErrBusy
}

// IsLocked reports whether the error is SQLITE_LOCKED (conflicting lock within the same connection)
func IsLocked(err error) bool {
	se, ok := ExtractSQLiteError(err)
	return ok && se.Code == sqlite3.ErrLocked
}

// IsReadOnly reports whether the error is SQLITE_READONLY
func IsReadOnly(err error) bool {
	se, ok := ExtractSQLiteError(err)
	return ok && se.Code == sqlite3.ErrReadOnly
}

// DBErrorCode maps a sqlite3 error to an ErrorCode with an ok flag.
// !ok means err wasn't a sqlite3.Error; caller may fall back to generic handling
func DBErrorCode(err error) (ErrorCode, bool) {
	se, ok := ExtractSQLiteError(err)
	if !ok {
		return ErrorCodeUnknown, false
	}

	switch se.Code {
	case sqlite3.ErrConstraint:
		return ErrorCodeDuplicateKey, true
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		// Contention with another writer; retryable
		return ErrorCodeDB, true
	case sqlite3.ErrReadOnly, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
		return ErrorCodeUnavailable, true
	case sqlite3.ErrCorrupt:
		return ErrorCodeStore, true
	}

	return ErrorCodeDB, true
}

// FromSQLite wraps a sqlite error with a mapped ErrorCode and message.
// If err is nil, returns nil
func FromSQLite(err error, msg string) error {
	if err == nil {
		return nil
	}
	if code, ok := DBErrorCode(err); ok {
		return Wrap(err, code, msg)
	}
	return Wrap(err, ErrorCodeDB, msg)
}

// FromSQLitef is the formatted variant of FromSQLite
func FromSQLitef(err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	if code, ok := DBErrorCode(err); ok {
		return Wrap(err, code, fmt.Sprintf(format, a...))
	}
	return Wrap(err, ErrorCodeDB, fmt.Sprintf(format, a...))
}

// IsRetryable reports whether a database error represents a transient
// condition worth retrying - chiefly SQLITE_BUSY/SQLITE_LOCKED from the
// single-writer discipline described in spec section 5.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}

	root := Root(err)

	var se sqlite3.Error
	if stderrs.As(root, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		default:
			return false
		}
	}

	s := strings.ToLower(root.Error())
	switch {
	case strings.Contains(s, "database is locked"),
		strings.Contains(s, "database table is locked"),
		strings.Contains(s, "busy"):
		return true
	default:
		return false
	}
}
