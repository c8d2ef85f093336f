package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"crowdfund/pkg/types"

	"github.com/sirupsen/logrus"
)

const maxJSONBody = 1 << 20

// envelope is the shape of every API response.
type envelope struct {
	Success bool            `json:"success"`
	Data    any             `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   types.ErrorCode `json:"error,omitempty"`
	Field   string          `json:"field,omitempty"`
	Detail  string          `json:"detail,omitempty"`
}

var statusByCode = map[types.ErrorCode]int{
	types.CodeAuthInvalidCredentials: http.StatusUnauthorized,
	types.CodeAuthUserExists:         http.StatusConflict,
	types.CodeAuthUserNotConfirmed:   http.StatusForbidden,
	types.CodeAuthInvalidCode:        http.StatusBadRequest,
	types.CodeAuthWeakPassword:       http.StatusBadRequest,
	types.CodeAuthUnauthorized:       http.StatusUnauthorized,
	types.CodeAuthSessionExpired:     http.StatusUnauthorized,
	types.CodeValidation:             http.StatusBadRequest,
	types.CodeEligibility:            http.StatusUnprocessableEntity,
	types.CodeInvalidState:           http.StatusConflict,
	types.CodeTierSoldOut:            http.StatusConflict,
	types.CodeNotFound:               http.StatusNotFound,
	types.CodePermissionDenied:       http.StatusForbidden,
	types.CodeConflict:               http.StatusConflict,
	types.CodeRateLimited:            http.StatusTooManyRequests,
	types.CodeFileTooLarge:           http.StatusRequestEntityTooLarge,
	types.CodeInvalidFileType:        http.StatusUnsupportedMediaType,
	types.CodePayment:                http.StatusPaymentRequired,
	types.CodeNetwork:                http.StatusGatewayTimeout,
	types.CodeServer:                 http.StatusInternalServerError,
}

func statusFor(code types.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	s.writeEnvelope(w, status, envelope{Success: true, Data: data})
}

func (s *Service) writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

// writeError renders err as the envelope for its code. Internals of server
// errors are logged, never returned.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := types.CodeOf(err)
	status := statusFor(code)

	body := envelope{Message: code.Message(), Error: code}

	var typed *types.Error
	if errors.As(err, &typed) {
		body.Field = typed.Field
		if code != types.CodeServer {
			body.Detail = typed.Detail
		}
	}

	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"code":   code,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	s.writeEnvelope(w, status, body)
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return &types.Error{Code: types.CodeValidation, Field: "body", Detail: "request body is too large"}
		}
		if errors.Is(err, io.EOF) {
			return types.NewValidationError("body", "request body is empty")
		}
		return types.NewValidationError("body", fmt.Sprintf("malformed JSON: %s", err))
	}

	if dec.More() {
		return types.NewValidationError("body", "request body must contain a single JSON object")
	}

	return nil
}
