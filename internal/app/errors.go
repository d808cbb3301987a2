package app

import (
	"errors"
	"fmt"
	"net/http"

	"faultline/internal/auth"
	"faultline/internal/pipeline"
	"faultline/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, auth.ErrInvalidSignature) {
		return http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid request signature", nil
	}
	if errors.Is(err, pipeline.ErrEmptyPayload) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "payload is required", nil
	}
	var storeErr *pipeline.StoreError
	if errors.As(err, &storeErr) {
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Error store unavailable", map[string]any{"op": storeErr.Op}
	}
	var deliveryErr *pipeline.DeliveryError
	if errors.As(err, &deliveryErr) {
		return http.StatusBadGateway, "DELIVERY_FAILED", "Notification could not be delivered", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
