package backend

import (
	"errors"
	"fmt"
)

// Backend error codes with dedicated user-facing behavior.
const (
	CodeOutOfSubscribedStorage = "OUT_OF_SUBSCRIBED_STORAGE"
	CodeAlreadyInWorkflow      = "ALREADY_IN_WORKFLOW"
)

// APIError is a non-2xx response carrying the backend's structured error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %v (%v): %v", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %v: %v", e.StatusCode, e.Message)
}

// SaveErrorKind maps a failed persistence call to the behavior the editor
// shows the user.
type SaveErrorKind int

const (
	// SaveErrorGeneric surfaces a generic toast.
	SaveErrorGeneric SaveErrorKind = iota
	// SaveErrorStorage opens the storage/billing dialog.
	SaveErrorStorage
	// SaveErrorWorkflow surfaces the workflow-conflict message.
	SaveErrorWorkflow
	// SaveErrorValidation is silently ignored. The server already rejected the
	// payload and the local state will be corrected by the next reload.
	SaveErrorValidation
)

// ClassifySaveError buckets a persistence failure.
func ClassifySaveError(err error) SaveErrorKind {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return SaveErrorGeneric
	}
	switch apiErr.Code {
	case CodeOutOfSubscribedStorage:
		return SaveErrorStorage
	case CodeAlreadyInWorkflow:
		return SaveErrorWorkflow
	}
	if apiErr.StatusCode == 422 {
		return SaveErrorValidation
	}
	return SaveErrorGeneric
}
