package library

import "fmt"

// Validation error codes returned to clients
const (
	CodeMissingFile     = "MISSING_FILE"
	CodeEmptyFile       = "EMPTY_FILE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeUnsupportedType = "UNSUPPORTED_FILE_TYPE"
)

// ValidationError describes an upload rejected before it reached the store
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
