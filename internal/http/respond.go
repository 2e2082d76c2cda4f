package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fjod/go_pharmacy/internal/backend"
	"github.com/fjod/go_pharmacy/internal/catalog"
	"github.com/fjod/go_pharmacy/internal/checkout"
	"github.com/fjod/go_pharmacy/internal/orders"
	"github.com/fjod/go_pharmacy/pkg/circuitbreaker"
	"github.com/fjod/go_pharmacy/pkg/logger"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Int("status", status), zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

var validationCodes = []struct {
	err  error
	code string
}{
	{checkout.ErrSignInRequired, "sign_in_required"},
	{checkout.ErrAddressRequired, "address_required"},
	{checkout.ErrCartEmpty, "cart_empty"},
}

// classify maps a service error to the status, code and message the API
// answers with.
func classify(err error) (int, ErrorResponse) {
	var (
		rejected *orders.TransitionRejectedError
		te       *backend.TransportError
		ve       *checkout.ValidationError
	)
	switch {
	case errors.As(err, &ve):
		var codes, msgs []string
		for _, vc := range validationCodes {
			if errors.Is(err, vc.err) {
				codes = append(codes, vc.code)
				msgs = append(msgs, vc.err.Error())
			}
		}
		return http.StatusBadRequest, ErrorResponse{
			Error:   strings.Join(msgs, "; "),
			Code:    codes[0],
			Details: strings.Join(codes, ","),
		}
	case errors.Is(err, checkout.ErrSignInRequired):
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "sign_in_required"}
	case errors.Is(err, checkout.ErrSubmissionInProgress):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "submission_in_progress"}
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "order_not_found"}
	case errors.Is(err, orders.ErrBoardStale):
		return http.StatusOK, ErrorResponse{Error: err.Error(), Code: "board_stale"}
	case errors.As(err, &rejected):
		return rejected.StatusCode, ErrorResponse{Error: rejected.Message, Code: "transition_rejected"}
	case errors.As(err, &te) && te.Rejected():
		return te.StatusCode, ErrorResponse{Error: te.Detail, Code: "backend_rejected"}
	case circuitbreaker.IsOpen(err):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "backend temporarily unavailable", Code: "service_unavailable"}
	case errors.Is(err, catalog.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "catalog unavailable", Code: "catalog_unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out", Code: "timeout"}
	case errors.As(err, &te):
		msg := "backend error"
		if te.Detail != "" {
			msg = te.Detail
		}
		return http.StatusBadGateway, ErrorResponse{Error: msg, Code: "backend_error"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"}
	}
}

func respondServiceError(ctx context.Context, log *zap.Logger, w http.ResponseWriter, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error(ctx, log, "request failed", zap.Error(err), zap.String("request_id", getRequestID(ctx)))
	}
	respondJSON(w, status, body)
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}

func decodeAndValidate(r *http.Request, v *validator.Validate, dst any) (string, string, bool) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return "invalid_request", "invalid JSON body", false
	}
	if err := v.Struct(dst); err != nil {
		return "validation_failed", formatValidationError(err), false
	}
	return "", "", true
}
