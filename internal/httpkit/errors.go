package httpkit

import (
	"net/http"

	apperrors "avatarsynth/internal/pkg/errors"
)

// WriteError writes err using the status and code carried by an *errors.Error.
// Anything else is answered as an opaque internal error.
func WriteError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := apperrors.GetHTTPStatus(err)

	msg := err.Error()
	if code == apperrors.CodeInternal {
		msg = "internal server error"
	} else {
		var e *apperrors.Error
		if apperrors.As(err, &e) && e.Message != "" {
			msg = e.Message
		}
	}

	WriteErr(w, status, string(code), msg, apperrors.GetFields(err))
}
