package resilience

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
)

// Kind is the terminal classification of a failed request.
type Kind string

const (
	KindNetworkUnavailable Kind = "NetworkUnavailable"
	KindTokenExpired       Kind = "TokenExpired"
	KindForbidden          Kind = "Forbidden"
	KindValidationFailed   Kind = "ValidationFailed"
	KindNotFound           Kind = "NotFound"
	KindConflict           Kind = "Conflict"
	KindRateLimited        Kind = "RateLimited"
	KindServerUnavailable  Kind = "ServerUnavailable"
	KindUnknown            Kind = "Unknown"
)

var kindSentinels = map[Kind]error{
	KindNetworkUnavailable: apperrors.ErrNetworkUnavailable,
	KindTokenExpired:       apperrors.ErrTokenExpired,
	KindForbidden:          apperrors.ErrForbidden,
	KindValidationFailed:   apperrors.ErrValidationFailed,
	KindNotFound:           apperrors.ErrNotFound,
	KindConflict:           apperrors.ErrConflict,
	KindRateLimited:        apperrors.ErrRateLimited,
	KindServerUnavailable:  apperrors.ErrServerUnavailable,
	KindUnknown:            apperrors.ErrUnknown,
}

// Error is a classified request failure. Status 0 means no response arrived.
type Error struct {
	Kind     Kind
	Status   int
	Message  string              // user facing
	Fields   map[string][]string // field level validation detail (400/422)
	Attempts int
	Err      error // transport error, if any
}

func (e *Error) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return string(e.Kind)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap exposes the taxonomy sentinel and the transport error to errors.Is.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Classify maps a terminal status (0 for transport failure) and payload to an Error.
func Classify(status int, body []byte, transportErr error) *Error {
	e := &Error{Status: status, Err: transportErr}
	switch {
	case status == 0:
		e.Kind = KindNetworkUnavailable
		e.Message = "Unable to reach the server. Check your connection and try again."
	case status == http.StatusBadRequest:
		e.Kind = KindValidationFailed
		e.Message = payloadMessage(body, "The request was invalid. Please check your input.")
		e.Fields = fieldErrors(body)
	case status == http.StatusUnauthorized:
		e.Kind = KindTokenExpired
		e.Message = "Your session has expired. Please log in again."
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
		e.Message = "You do not have permission to perform this action."
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
		e.Message = "The requested resource was not found."
	case status == http.StatusConflict:
		e.Kind = KindConflict
		e.Message = payloadMessage(body, "The request conflicts with the current state of the resource.")
	case status == http.StatusUnprocessableEntity:
		e.Kind = KindValidationFailed
		e.Fields = fieldErrors(body)
		e.Message = payloadMessage(body, "Some fields are invalid.")
		if len(e.Fields) > 0 {
			e.Message = e.Message + " " + summarizeFields(e.Fields)
		}
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.Message = "Too many requests. Please wait a moment and try again."
	case status == http.StatusInternalServerError:
		e.Kind = KindServerUnavailable
		e.Message = "A server error occurred. Please try again later."
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		e.Kind = KindServerUnavailable
		e.Message = "The service is temporarily unavailable. Please try again later."
	case status >= 500 && status < 600:
		e.Kind = KindServerUnavailable
		e.Message = fmt.Sprintf("The server could not complete the request (status %d).", status)
	default:
		e.Kind = KindUnknown
		e.Message = fmt.Sprintf("Unexpected error (status %d).", status)
	}
	return e
}

func payloadMessage(body []byte, fallback string) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return fallback
	}
	for _, m := range []string{payload.Message, payload.Detail, payload.Error} {
		if strings.TrimSpace(m) != "" {
			return m
		}
	}
	return fallback
}

// fieldErrors accepts {"errors":{"field":["msg"]}}, {"errors":{"field":"msg"}}
// and {"errors":[{"field":"f","message":"m"}]}.
func fieldErrors(body []byte) map[string][]string {
	var payload struct {
		Errors json.RawMessage `json:"errors"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil || len(payload.Errors) == 0 {
		return nil
	}

	fields := make(map[string][]string)

	var byField map[string]json.RawMessage
	if json.Unmarshal(payload.Errors, &byField) == nil {
		for field, raw := range byField {
			var many []string
			if json.Unmarshal(raw, &many) == nil {
				fields[field] = append(fields[field], many...)
				continue
			}
			var one string
			if json.Unmarshal(raw, &one) == nil {
				fields[field] = append(fields[field], one)
			}
		}
	}

	var list []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload.Errors, &list) == nil {
		for _, item := range list {
			if item.Field == "" {
				continue
			}
			fields[item.Field] = append(fields[item.Field], item.Message)
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func summarizeFields(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(fields[name], ", "))
	}
	return strings.Join(parts, "; ")
}
