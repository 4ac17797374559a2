package xp

import "fmt"

const (
	CodeForbidden           = "XP_FORBIDDEN"
	CodeNotEnough           = "XP_NOT_ENOUGH"
	CodeTransactionNotFound = "XP_TRANSACTION_NOT_FOUND"
	CodeInvalidStatus       = "XP_INVALID_STATUS"
	CodeFieldNotUpgradable  = "XP_FIELD_NOT_UPGRADABLE"
	CodeMaxExceeded         = "XP_MAX_EXCEEDED"
	CodeInvalidAmount       = "XP_INVALID_AMOUNT"
	CodeWrongType           = "XP_WRONG_TYPE"
)

// Sentinels for errors.Is. A Rejection matches any sentinel with the same code.
var (
	ErrForbidden           = &Rejection{Code: CodeForbidden}
	ErrNotEnough           = &Rejection{Code: CodeNotEnough}
	ErrTransactionNotFound = &Rejection{Code: CodeTransactionNotFound}
	ErrInvalidStatus       = &Rejection{Code: CodeInvalidStatus}
	ErrFieldNotUpgradable  = &Rejection{Code: CodeFieldNotUpgradable}
	ErrMaxExceeded         = &Rejection{Code: CodeMaxExceeded}
	ErrInvalidAmount       = &Rejection{Code: CodeInvalidAmount}
	ErrWrongType           = &Rejection{Code: CodeWrongType}
)

// Rejection captures a ledger-level reason an operation was declined.
// A rejected operation leaves the sheet untouched.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return r.Code
	}
	return r.Message
}

// Is reports whether target is a Rejection with the same code.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Code == r.Code
}

func reject(code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}
