package models

import "github.com/citizenvoice/citizenvoice-api/apierrors"

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError `json:"response"`
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Fields  []apierrors.FieldError `json:"fields,omitempty"`
}

// MessageResponse is returned by endpoints that only acknowledge an action
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthCheckResponse is returned by the health endpoint
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
