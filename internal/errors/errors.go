package errors

import "errors"

var ErrUnauthorized = errors.New("user is not authorized")
var ErrForbidden = errors.New("operation is forbidden for user")
var ErrNotFound = errors.New("resource not found")
var ErrConflict = errors.New("resource is in a conflicting state")
var ErrUnavailable = errors.New("service temporarily unavailable")
