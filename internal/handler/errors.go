package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/service"
	"github.com/policydesk/api/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	if _, ok := err.(validator.ValidationErrors); ok {
		return service.ValidationErrorFrom(err).Fields
	}
	return nil
}

// writeError maps service and relay errors onto response envelopes
func writeError(c *fiber.Ctx, err error) error {
	var (
		verr     *model.ValidationError
		statusEr *client.StatusError
	)
	switch {
	case errors.As(err, &verr):
		return response.ValidationError(c, "Validation failed", verr.Fields)
	case errors.Is(err, service.ErrBatchNotFound):
		return response.NotFound(c, "Batch not found")
	case errors.Is(err, service.ErrUnknownTarget):
		return response.NotFound(c, "Target not found in batch")
	case errors.Is(err, service.ErrNotRetryable),
		errors.Is(err, service.ErrRetryInFlight),
		errors.Is(err, service.ErrNotEligible):
		return response.Conflict(c, err.Error())
	case client.IsTransient(err):
		return response.RelayUnavailable(c, err.Error())
	case errors.As(err, &statusEr):
		if statusEr.StatusCode == http.StatusNotFound {
			return response.NotFound(c, "Not found at relay")
		}
		return response.RelayError(c, err.Error())
	}
	return response.ServiceError(c, err.Error())
}
