// Package respond writes JSON bodies and maps failures to stable HTTP
// statuses and machine codes.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/MrJamesThe3rd/tesoro/internal/failure"
	"github.com/MrJamesThe3rd/tesoro/internal/logger"
)

const CodeUnauthorized = "unauthorized"

// MaxBodyBytes caps a decoded request body.
const MaxBodyBytes = 1 << 20

var statuses = map[failure.Kind]int{
	failure.KindNotFound:        http.StatusNotFound,
	failure.KindForbidden:       http.StatusForbidden,
	failure.KindInvalidState:    http.StatusConflict,
	failure.KindInvalidApprover: http.StatusUnprocessableEntity,
	failure.KindEmptySelection:  http.StatusUnprocessableEntity,
	failure.KindBudgetExhausted: http.StatusConflict,
	failure.KindConflict:        http.StatusConflict,
	failure.KindOutOfRange:      http.StatusUnprocessableEntity,
	failure.KindValidation:      http.StatusBadRequest,
}

// StatusOf returns the HTTP status for a failure kind.
func StatusOf(kind failure.Kind) int {
	if status, ok := statuses[kind]; ok {
		return status
	}

	return http.StatusInternalServerError
}

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, log *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}

// Error writes err as an ErrorBody. Internal failures are logged and their
// message is not exposed.
func Error(w http.ResponseWriter, log *logger.Logger, err error) {
	kind := failure.KindOf(err)
	message := err.Error()

	if kind == failure.KindInternal {
		log.Error("request failed", "error", err)
		message = "internal error"
	}

	JSON(w, log, StatusOf(kind), ErrorBody{Error: ErrorDetail{Code: string(kind), Message: message}})
}

func Unauthorized(w http.ResponseWriter, log *logger.Logger, message string) {
	JSON(w, log, http.StatusUnauthorized, ErrorBody{Error: ErrorDetail{Code: CodeUnauthorized, Message: message}})
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// Decode reads a JSON body of at most MaxBodyBytes into dst and checks its
// validate tags. Any problem is reported as failure.ErrValidation.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", failure.ErrValidation, tooLarge.Limit)
		}

		return fmt.Errorf("%w: malformed body: %w", failure.ErrValidation, err)
	}

	if err := getValidator().Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}

			return fmt.Errorf("%w: %s", failure.ErrValidation, strings.Join(msgs, "; "))
		}

		return fmt.Errorf("%w: %w", failure.ErrValidation, err)
	}

	return nil
}
