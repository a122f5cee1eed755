package errors

import stderrors "errors"

// Is, As and Join forward to the standard library so callers need a single
// errors import.

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }
