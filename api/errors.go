package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/Domenick1991/roombooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
	Field string `json:"field,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationResponse struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields"`
}

func writeError(c *gin.Context, log *slog.Logger, err error) {
	var v *domain.Violation
	if errors.As(err, &v) {
		status := http.StatusBadRequest
		if v.IsConflict() {
			status = http.StatusConflict
		}
		c.JSON(status, errorResponse{Error: v.Message, Rule: string(v.Rule), Field: v.Field})
		return
	}

	switch {
	case errors.Is(err, domain.ErrRoomBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrRoomConflict):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidBooking):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAccessCodeRequired):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "access code required"})
	case errors.Is(err, domain.ErrAccessCodeIncorrect):
		c.JSON(http.StatusForbidden, errorResponse{Error: "incorrect access code"})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, errorResponse{Error: "not authorized to modify this booking"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "booking not found"})
	default:
		log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func translateValidationErrors(errs validator.ValidationErrors) validationResponse {
	resp := validationResponse{Error: "validation failed"}
	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			if err.Kind() == reflect.String {
				message = fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
			} else {
				message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
			}
		case "max":
			if err.Kind() == reflect.String {
				message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
			} else {
				message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
			}
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		}

		resp.Fields = append(resp.Fields, fieldError{Field: err.Field(), Message: message})
	}
	return resp
}
