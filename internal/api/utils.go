package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type codedError struct {
	err  error
	code int
	// detail replaces the error text in the response body when set.
	detail any
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code}
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return CodedErrorf(http.StatusUnprocessableEntity, "invalid request: %w", err)
	}

	details := make([]fieldError, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
		details = append(details, fieldError{
			Loc:  []string{"body", fe.Field()},
			Msg:  msg,
			Type: "value_error." + fe.Tag(),
		})
		msgs = append(msgs, msg)
	}

	return &codedError{
		err:    errors.New(strings.Join(msgs, "; ")),
		code:   http.StatusUnprocessableEntity,
		detail: details,
	}
}

func ParseRequest[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		slog.Error("error parsing request body", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}
	if err := validate.Struct(data); err != nil {
		return data, validationError(err)
	}
	return data, nil
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return RestHandlerWithStatus(http.StatusOK, handler)
}

// RestHandlerWithStatus is RestHandler with a different success status. A nil
// result with 204 writes no body.
func RestHandlerWithStatus(status int, handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, status, res)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var cerr *codedError
	if !errors.As(err, &cerr) {
		slog.Error("recieved non coded error from endpoint", "error", err)
		cerr = &codedError{err: err, code: http.StatusInternalServerError}
	} else if cerr.code == http.StatusInternalServerError {
		slog.Error("internal server error received in endpoint", "error", err)
	}

	var detail any = cerr.Error()
	if cerr.detail != nil {
		detail = cerr.detail
	}

	if cerr.code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	WriteJsonResponse(w, cerr.code, map[string]any{"detail": detail})
}

func WriteJsonResponse(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("error writing response body", "error", err)
	}
}

// URLParamUUID parses a path id. Ids that are not uuids cannot name a record,
// so they are reported as notFound.
func URLParamUUID(r *http.Request, key string, notFound string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, CodedErrorf(http.StatusNotFound, "%s", notFound)
	}

	return id, nil
}
