package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"

	"github.com/hannes/yaak-ner/logger"
	"github.com/hannes/yaak-ner/ner/detectors"
)

const apiRunningMessage = "API is running"

// EntityRecognizer is the model holder as seen by the handlers
type EntityRecognizer interface {
	Detect(ctx context.Context, text string) ([]detectors.Entity, error)
}

// Task is the POST /ner request body. Input is a pointer so a missing field
// can be told apart from an empty string.
type Task struct {
	Input *string `json:"input" validate:"required"`
}

// Entity is one recognized span in the response
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type entitiesResponse struct {
	Success bool     `json:"success"`
	Data    []Entity `json:"data"`
}

// ValidationDetail mirrors one entry of a FastAPI validation error body
type ValidationDetail struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

type validationErrorResponse struct {
	Detail []ValidationDetail `json:"detail"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// handleRoot answers the liveness probe. It never touches the model.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	encodeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: apiRunningMessage,
	})
}

// handleNER validates the task, runs the model and maps its entities
func (s *Server) handleNER(w http.ResponseWriter, r *http.Request) {
	var task Task
	if err := decodeAndValidateTask(r, &task); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			encodeJSON(w, http.StatusRequestEntityTooLarge, detailResponse{Detail: "Request Entity Too Large"})
			return
		}
		logger.Debug("rejected invalid task", "request_id", RequestIDFromContext(r.Context()), "error", err)
		encodeJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{Detail: validationDetails(err)})
		return
	}

	entities, err := s.recognizer.Detect(r.Context(), *task.Input)
	if err != nil {
		requestID := RequestIDFromContext(r.Context())
		logger.Error("inference failed",
			"request_id", requestID,
			"input_bytes", len(*task.Input),
			"error", err,
		)
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("request_id", requestID)
			sentry.CaptureException(err)
		})
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data := make([]Entity, 0, len(entities))
	for _, entity := range entities {
		data = append(data, Entity{Text: entity.Text, Type: entity.Label})
	}

	encodeJSON(w, http.StatusOK, entitiesResponse{
		Success: true,
		Data:    data,
	})
}

// errTrailingData reports a body holding more than one JSON value
var errTrailingData = errors.New("extra data after JSON value")

// decodeAndValidateTask decodes the request body and runs struct validation.
// Keys are matched exactly, so "Input" or "INPUT" do not count as input.
func decodeAndValidateTask(r *http.Request, task *Task) error {
	dec := json.NewDecoder(r.Body)

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return err
	}

	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
	case err != nil:
		return err
	default:
		return errTrailingData
	}

	if raw, ok := fields["input"]; ok {
		if err := json.Unmarshal(raw, &task.Input); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				typeErr.Field = "input"
			}
			return err
		}
	}
	return validate.Struct(task)
}

// validationDetails turns a decode or validation error into FastAPI-style details
func validationDetails(err error) []ValidationDetail {
	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
		fieldErrs validator.ValidationErrors
	)

	switch {
	case errors.As(err, &fieldErrs):
		details := make([]ValidationDetail, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, ValidationDetail{
				Loc:  []any{"body", fe.Field()},
				Msg:  "field required",
				Type: "value_error.missing",
			})
		}
		return details
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return []ValidationDetail{{
				Loc:  []any{"body"},
				Msg:  "value is not a valid dict",
				Type: "type_error.dict",
			}}
		}
		return []ValidationDetail{{
			Loc:  []any{"body", typeErr.Field},
			Msg:  "str type expected",
			Type: "type_error.str",
		}}
	case errors.As(err, &syntaxErr):
		return []ValidationDetail{{
			Loc:  []any{"body", syntaxErr.Offset},
			Msg:  fmt.Sprintf("Expecting value: %s", syntaxErr.Error()),
			Type: "value_error.jsondecode",
		}}
	case errors.Is(err, errTrailingData):
		return []ValidationDetail{{
			Loc:  []any{"body"},
			Msg:  "Extra data: " + err.Error(),
			Type: "value_error.jsondecode",
		}}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return []ValidationDetail{{
			Loc:  []any{"body"},
			Msg:  "Expecting value: unexpected end of JSON input",
			Type: "value_error.jsondecode",
		}}
	case errors.Is(err, io.EOF):
		return []ValidationDetail{{
			Loc:  []any{"body"},
			Msg:  "field required",
			Type: "value_error.missing",
		}}
	default:
		return []ValidationDetail{{
			Loc:  []any{"body"},
			Msg:  err.Error(),
			Type: "value_error",
		}}
	}
}

// encodeJSON writes v as the JSON response body with the given status
func encodeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
