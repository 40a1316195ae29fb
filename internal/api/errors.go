package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/service"
	apperrors "github.com/vaidashi/marketplace-orders/pkg/errors"
)

// toAppError maps domain errors onto HTTP-aware application errors
func toAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}

	var transitionErr *lifecycle.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return apperrors.NewConflictError(transitionErr.Error()).
			WithCode("invalid_transition").
			WithContext("from", transitionErr.From).
			WithContext("to", transitionErr.To)
	}

	if reason, ok := lifecycle.ReasonOf(err); ok {
		message := fmt.Sprintf("review not allowed: %s", reason)
		if reason == lifecycle.ReasonAlreadyReviewed {
			return apperrors.NewConflictError(message).WithCode(string(reason))
		}
		return apperrors.NewForbiddenError(message).WithCode(string(reason))
	}

	switch {
	case errors.Is(err, lifecycle.ErrConcurrencyConflict):
		return apperrors.NewAppError(apperrors.ErrConflict,
			"order was modified concurrently, please retry",
			http.StatusConflict, true).WithCode("concurrency_conflict")
	case errors.Is(err, lifecycle.ErrOrderNotFound):
		return apperrors.NewNotFoundError("order not found")
	case errors.Is(err, service.ErrReviewNotFound):
		return apperrors.NewNotFoundError("review not found")
	case errors.Is(err, lifecycle.ErrUnknownStatus),
		errors.Is(err, lifecycle.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidInput):
		return apperrors.NewInvalidInputError(err.Error())
	}

	return apperrors.NewInternalError("internal server error")
}

func invalidBody(err error) *apperrors.AppError {
	return apperrors.NewInvalidInputError("invalid request payload").
		WithCode("invalid_request_body").
		WithContext("error", err.Error())
}

func validationFailed(err error) *apperrors.AppError {
	appErr := apperrors.NewInvalidInputError("validation failed").WithCode("validation_failed")

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErr.WithContext("error", err.Error())
	}

	for _, fe := range fieldErrs {
		appErr.WithContext(fe.Namespace(), fe.Tag())
	}

	return appErr
}
