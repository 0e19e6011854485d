package services

import "errors"

var (
	// ErrTransientCheck: внешняя проверка недоступна или не ответила вовремя.
	ErrTransientCheck = errors.New("transient check failure")
	// ErrSocialUnavailable is returned when no social client is configured.
	ErrSocialUnavailable = errors.New("social checker unavailable")
	// ErrIllegalTransition means a handler tried a move the table does not declare.
	ErrIllegalTransition = errors.New("illegal state transition")
)
