package errors

import stderrors "errors"

// Is forwards to the standard library so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join forwards to the standard library.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
