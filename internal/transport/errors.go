package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrMalformedResponse = errors.New("malformed response from backend")

// AuthenticationError is returned for a 401 response. It remembers the token the
// rejected request carried so that the session policy can tell a stale
// rejection from one aimed at the current session.
type AuthenticationError struct {
	Detail string
	token  string
}

func (e *AuthenticationError) Error() string {
	if e.Detail != "" {
		return "authentication failed: " + e.Detail
	}
	return "authentication failed"
}

func (e *AuthenticationError) Token() string {
	return e.token
}

type RequestError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.Status)
}

type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Message returns the text shown to the user for err: the backend's detail when
// it sent one, fallback otherwise. Network failures always use the fallback.
func Message(err error, fallback string) string {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) && authErr.Detail != "" {
		return authErr.Detail
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Detail != "" {
		return reqErr.Detail
	}

	return fallback
}

func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound
}

func IsAuthentication(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// parseDetail pulls the human readable message out of an error body. The
// backend sends {"detail": "..."} for handled errors and a list of
// {"msg": "..."} objects for request validation failures.
func parseDetail(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}

	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String:
		return detail.String()
	case detail.IsArray():
		var msgs []string
		for _, item := range detail.Array() {
			if item.Type == gjson.String {
				msgs = append(msgs, item.String())
			} else if msg := item.Get("msg"); msg.Exists() {
				msgs = append(msgs, msg.String())
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
