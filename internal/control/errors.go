package control

import "fmt"

// ApplyFailedMessage is the fixed message reported when settings were not applied.
const ApplyFailedMessage = "Failed to apply RF settings on the device."

// OperationError reports a failed control operation together with the
// response the device produced.
type OperationError struct {
	Code     error
	Message  string
	Response *SettingsResponse
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Code, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Code
}

// ErrorCode returns the code recorded in audit entries.
func (e *OperationError) ErrorCode() string {
	return e.Code.Error()
}
