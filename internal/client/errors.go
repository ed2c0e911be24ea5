package client

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// HTTPError is a non-2xx response from the service.
type HTTPError struct {
	Status    int
	Message   string
	RequestID string
	Method    string
	URL       string

	// RetryAfter is the Retry-After value in seconds on 413 and 429
	// responses, 0 when absent or unparseable.
	RetryAfter int
}

func (e *HTTPError) Error() string {
	s := fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
	if e.RequestID != "" {
		s += fmt.Sprintf(" (Request-ID: %s)", e.RequestID)
	}
	return s
}

// defaultMessages are used when the response carries no usable message.
var defaultMessages = map[int]string{
	http.StatusBadRequest:            "Bad request",
	http.StatusUnauthorized:          "Unauthorized",
	http.StatusForbidden:             "Forbidden",
	http.StatusNotFound:              "Not found",
	http.StatusMethodNotAllowed:      "Method Not Allowed",
	http.StatusNotAcceptable:         "Not Acceptable",
	http.StatusConflict:              "Conflict",
	http.StatusRequestEntityTooLarge: "Over limit",
	http.StatusTooManyRequests:       "Rate limit",
	http.StatusNotImplemented:        "Not Implemented",
}

type faultBody struct {
	ErrorMessage struct {
		Faultstring string `json:"faultstring"`
	} `json:"error_message"`
}

// newHTTPError builds an HTTPError from a failed response. The message is
// the faultstring of a JSON body or the text of a text/* body.
func newHTTPError(resp *http.Response, body []byte, method, url, sentID string) *HTTPError {
	e := &HTTPError{
		Status:    resp.StatusCode,
		Method:    method,
		URL:       url,
		RequestID: resp.Header.Get(HeaderRequestID),
	}
	if e.RequestID == "" {
		e.RequestID = sentID
	}

	if resp.StatusCode == http.StatusRequestEntityTooLarge || resp.StatusCode == http.StatusTooManyRequests {
		if n, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil {
			e.RetryAfter = n
		}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json":
		var fb faultBody
		if err := json.Unmarshal(body, &fb); err == nil {
			e.Message = fb.ErrorMessage.Faultstring
		}
	case strings.HasPrefix(mediaType, "text/"):
		e.Message = strings.TrimSpace(string(body))
	}

	if e.Message == "" {
		if msg, ok := defaultMessages[resp.StatusCode]; ok {
			e.Message = msg
		} else {
			e.Message = "Unknown Error"
		}
	}
	return e
}
