package errutil

import (
	"errors"
	"net/http"
)

type HttpError struct {
	Code int
	Err  error
}

func (e *HttpError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Code)
	}
	return e.Err.Error()
}

func (e *HttpError) Unwrap() error {
	return e.Err
}

func newHttpError(code int, err error) error {
	return &HttpError{
		Code: code,
		Err:  err,
	}
}

func ValidationError(err error) error {
	return newHttpError(http.StatusBadRequest, err)
}

func BadRequestError(err error) error {
	return newHttpError(http.StatusBadRequest, err)
}

func UnauthorizedError(err error) error {
	return newHttpError(http.StatusUnauthorized, err)
}

func NotFoundError(err error) error {
	return newHttpError(http.StatusNotFound, err)
}

func ConflictError(err error) error {
	return newHttpError(http.StatusConflict, err)
}

func InternalError(err error) error {
	return newHttpError(http.StatusInternalServerError, err)
}

// ParseHttpError returns the http status code and the message exposed to clients.
// Errors without an HttpError in their chain are hidden behind a generic message.
func ParseHttpError(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}

	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		return httpErr.Code, httpErr.Error()
	}

	return http.StatusInternalServerError, "internal server error"
}

func Is(err error, code int) bool {
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		return httpErr.Code == code
	}
	return false
}
