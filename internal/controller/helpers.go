package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err     error
	status  int
	code    string
	message string // empty means err.Error()
}

func catalogMapping(err error, c domainErrors.ErrorCode) errorMapping {
	return errorMapping{err: err, status: c.HTTPStatus, code: c.Code, message: c.Message}
}

// errorMappings classifies sentinel errors that reach the controllers
// without a catalog entry attached. Catalog codes keep their catalog message.
var errorMappings = []errorMapping{
	catalogMapping(domainErrors.ErrTransactionNotFound, domainErrors.InvalidTxnReference),
	catalogMapping(domainErrors.ErrInvalidStateTransition, domainErrors.InvalidTxnStatus),
	catalogMapping(domainErrors.ErrLockAcquisitionFailed, domainErrors.TxnLocked),
	{err: domainErrors.ErrInvalidAmount, status: http.StatusBadRequest, code: "invalid_amount"},
	{err: domainErrors.ErrDuplicateReference, status: http.StatusConflict, code: "duplicate_reference"},
	{err: domainErrors.ErrUnauthorized, status: http.StatusUnauthorized, code: "unauthorized"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var procErr *domainErrors.ProcessingError
	if errors.As(err, &procErr) {
		if procErr.HTTPStatus >= http.StatusInternalServerError {
			log.Error().Err(err).Str("error_code", procErr.ErrorCode).Msg("request failed")
		}
		writeJSON(w, procErr.HTTPStatus, ErrorResponse{
			ErrorCode:    procErr.ErrorCode,
			ErrorMessage: procErr.ErrorMessage,
		})
		return
	}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			ErrorCode:    "validation_error",
			ErrorMessage: validationErr.Error(),
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.message
			if msg == "" {
				msg = m.err.Error()
			}
			writeJSON(w, m.status, ErrorResponse{ErrorCode: m.code, ErrorMessage: msg})
			return
		}
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	writeJSON(w, domainErrors.GenericError.HTTPStatus, ErrorResponse{
		ErrorCode:    domainErrors.GenericError.Code,
		ErrorMessage: domainErrors.GenericError.Message,
	})
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
