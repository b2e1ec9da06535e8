package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

// Notification messages shown to the end user, one per Kind.
const (
	messageNetworkUnreachable = "Network error. Please check your connection and try again."
	messageUnauthenticated    = "Your session has expired. Please log in again."
	messageForbidden          = "You do not have permission to perform this action."
	messageNotFound           = "The requested resource was not found."
	messageValidationFailed   = "Validation failed. Please check your input."
	messageServerFault        = "Server error. Please try again later."
	messageUnclassified       = "An unexpected error occurred."
)

// notifyKindError is the only notification kind the transport emits.
const notifyKindError = "error"

// Notifier displays a human-readable message to the end user. Calls are
// fire-and-forget.
type Notifier interface {
	Notify(message, kind string)
}

type discardNotifier struct{}

func (discardNotifier) Notify(string, string) {}

// classifyStatus maps a dispatch outcome to a Kind. A non-nil err means no
// response was received at all.
func classifyStatus(code int, err error) Kind {
	if err != nil {
		return KindNetworkUnreachable
	}

	switch code {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnprocessableEntity:
		return KindValidationFailed
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return KindServerFault
	default:
		return KindUnclassified
	}
}

// errorBody is the JSON error envelope returned by the raffle API.
type errorBody struct {
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

// classifier turns failed outcomes into *Error values and owns the
// notification side effect for surfaced failures.
type classifier struct {
	notifier      Notifier
	quietNotFound []string
	logger        *slog.Logger
}

// classify builds the typed failure for one failed attempt of req.
func (c *classifier) classify(req *Request, resp *Response, err error) *Error {
	out := &Error{
		Method: req.Method,
		Path:   req.Path,
		Err:    err,
	}

	if resp != nil {
		out.StatusCode = resp.StatusCode
		out.RequestID = resp.RequestID
	}

	out.Kind = classifyStatus(out.StatusCode, err)

	var body errorBody
	if resp != nil && len(resp.Body) > 0 {
		// Non-JSON bodies leave body zero-valued.
		_ = json.Unmarshal(resp.Body, &body)
	}

	switch out.Kind {
	case KindNetworkUnreachable:
		out.Message = messageNetworkUnreachable
	case KindUnauthenticated:
		out.Message = messageUnauthenticated
	case KindForbidden:
		out.Message = messageForbidden
	case KindNotFound:
		out.Message = messageNotFound
	case KindValidationFailed:
		out.FieldErrors = parseFieldErrors(body.Errors)
		out.Message = firstFieldError(out.FieldErrors)

		if out.Message == "" {
			out.Message = messageValidationFailed
		}
	case KindServerFault:
		out.Message = messageServerFault
	default:
		out.Message = body.Message
		if out.Message == "" {
			out.Message = messageUnclassified
		}
	}

	return out
}

// surface emits the user notification for a failure that is about to be
// returned to its caller.
func (c *classifier) surface(failure *Error) {
	if c.suppressed(failure) {
		c.logger.Debug("notification suppressed",
			slog.String("kind", failure.Kind.String()),
			slog.String("path", failure.Path),
		)

		return
	}

	c.notifier.Notify(failure.Message, notifyKindError)
}

// suppressed reports whether failure must not produce a notification.
// Unauthenticated is handled by the refresh path; NotFound on a search
// endpoint is an expected empty result.
func (c *classifier) suppressed(failure *Error) bool {
	switch failure.Kind {
	case KindUnauthenticated:
		return true
	case KindNotFound:
		return slices.ContainsFunc(c.quietNotFound, func(p string) bool {
			return strings.Contains(failure.Path, p)
		})
	default:
		return false
	}
}

// parseFieldErrors accepts both {"field": ["msg", ...]} and {"field": "msg"}.
func parseFieldErrors(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}

	var lists map[string][]string
	if err := json.Unmarshal(raw, &lists); err == nil {
		return lists
	}

	var singles map[string]string
	if err := json.Unmarshal(raw, &singles); err != nil {
		return nil
	}

	lists = make(map[string][]string, len(singles))
	for field, msg := range singles {
		lists[field] = []string{msg}
	}

	return lists
}

// firstFieldError returns the first message of the alphabetically first
// field that has one. Field order in a JSON object is not preserved by
// decoding, so alphabetical order keeps the choice deterministic.
func firstFieldError(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		for _, msg := range fields[name] {
			if msg != "" {
				return msg
			}
		}
	}

	return ""
}
