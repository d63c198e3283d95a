package handler

// RESPONSE HELPERS:
// Every operation is rendered one of two ways, chosen here and nowhere else:
//
//   - JSON clients (Accept: application/json, or a JSON request body) get the
//     result as JSON, or {"error": "<Kind>", "message": "..."} on failure.
//   - Browser form posts get a 303 See Other redirect whose "flash" query
//     parameter carries the outcome message.
//
// Services return one result type per operation; only this layer decides
// the representation and the status code.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/platidea/internal/apperror"
)

// maxBodyBytes caps request bodies; the largest legitimate one is an idea
// with a 5000-character description.
const maxBodyBytes = 64 << 10

const internalErrorMessage = "An internal error occurred"

// ErrorResponse is the JSON shape of every error.
type ErrorResponse struct {
	Error   apperror.Kind `json:"error"`   // Unauthenticated, Forbidden, NotFound, ...
	Message string        `json:"message"` // human-readable description
	Field   string        `json:"field,omitempty"`
}

// MessageResponse is returned by operations that have no other payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func isJSONBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// wantsJSON reports whether the response should be JSON rather than a
// redirect.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") || isJSONBody(r)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindInvalid:
		return http.StatusBadRequest
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text a client may see for err. Internal errors never
// leak their details.
func publicMessage(err error) string {
	if apperror.KindOf(err) == apperror.KindInternal {
		return internalErrorMessage
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// writeError sends err as a JSON error response.
func writeError(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)

	resp := ErrorResponse{Error: kind, Message: publicMessage(err)}
	var appErr *apperror.AppError
	if kind != apperror.KindInternal && errors.As(err, &appErr) {
		resp.Field = appErr.Field
	}

	if apperror.Retryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

// redirectWithFlash sends the browser to target with a flash message.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, target, flash string) {
	if flash != "" {
		u, err := url.Parse(target)
		if err == nil {
			q := u.Query()
			q.Set("flash", flash)
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// respond renders a successful result.
func respond(w http.ResponseWriter, r *http.Request, status int, payload any, target, flash string) {
	if wantsJSON(r) {
		writeJSON(w, status, payload)
		return
	}
	redirectWithFlash(w, r, target, flash)
}

// respondError renders a failure. Form clients that are not logged in go to
// the login page; every other failure returns them to fallback.
func respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if apperror.KindOf(err) == apperror.KindInternal {
		slog.Error("unhandled error", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}
	if wantsJSON(r) {
		writeError(w, err)
		return
	}
	if apperror.KindOf(err) == apperror.KindUnauthenticated {
		fallback = "/users/login"
	}
	redirectWithFlash(w, r, fallback, publicMessage(err))
}

// IdentifyFailed renders a session lookup failure raised by auth.Identify.
// Form posts go back to the idea board with a flash message. Reads and JSON
// clients get the 503, since redirecting a GET would only repeat it.
func IdentifyFailed(w http.ResponseWriter, r *http.Request, err error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		writeError(w, err)
		return
	}
	respondError(w, r, err, "/ideas")
}

// decodeBody fills dst from a JSON body, or calls fromForm with the parsed
// form values for urlencoded form posts.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, fromForm func(url.Values)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if isJSONBody(r) {
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return apperror.ValidationFailed("body", "request body is too large")
			}
			return apperror.ValidationFailed("body", "request body is not valid JSON")
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return apperror.ValidationFailed("body", "request body could not be parsed")
	}
	fromForm(r.PostForm)
	return nil
}
