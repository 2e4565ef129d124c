package container

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of container error
type ErrorType string

const (
	// ErrorTypeRuntimeNotFound indicates the container runtime is not available
	ErrorTypeRuntimeNotFound ErrorType = "runtime_not_found"
	// ErrorTypeImageNotFound indicates the image was not found
	ErrorTypeImageNotFound ErrorType = "image_not_found"
	// ErrorTypeBuildFailed indicates the build driver returned nonzero
	ErrorTypeBuildFailed ErrorType = "build_failed"
	// ErrorTypePermissionDenied indicates a permission error
	ErrorTypePermissionDenied ErrorType = "permission_denied"
	// ErrorTypeNetworkError indicates a network-related error
	ErrorTypeNetworkError ErrorType = "network_error"
	// ErrorTypeConfigError indicates a configuration error
	ErrorTypeConfigError ErrorType = "config_error"
	// ErrorTypeUnknown indicates an unknown error
	ErrorTypeUnknown ErrorType = "unknown"
)

// ContainerError represents a detailed container operation error.
// Output preserves the driver's diagnostic text verbatim.
type ContainerError struct {
	Type       ErrorType
	Operation  string
	Message    string
	Underlying error
	Output     string
}

// Error implements the error interface
func (e *ContainerError) Error() string {
	parts := []string{e.Message}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("operation=%s", e.Operation))
	}

	if e.Output != "" {
		output := strings.TrimSpace(e.Output)
		if len(output) > 200 {
			output = output[:200] + "..."
		}
		parts = append(parts, fmt.Sprintf("output=%s", output))
	}

	if e.Underlying != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Underlying))
	}

	return strings.Join(parts, ", ")
}

// Unwrap returns the underlying error
func (e *ContainerError) Unwrap() error {
	return e.Underlying
}

// parseDockerError attempts to determine the error type from Docker output
func parseDockerError(output string, err error) ErrorType {
	outputLower := strings.ToLower(output)
	errStr := ""
	if err != nil {
		errStr = strings.ToLower(err.Error())
	}

	combined := outputLower + " " + errStr

	switch {
	case strings.Contains(combined, "no such image") || strings.Contains(combined, "pull access denied") || strings.Contains(combined, "repository does not exist"):
		return ErrorTypeImageNotFound
	case strings.Contains(combined, "permission denied") || strings.Contains(combined, "access denied"):
		return ErrorTypePermissionDenied
	case strings.Contains(combined, "network") || strings.Contains(combined, "port is already allocated"):
		return ErrorTypeNetworkError
	case strings.Contains(combined, "docker daemon") || strings.Contains(combined, "docker: command not found"):
		return ErrorTypeRuntimeNotFound
	default:
		return ErrorTypeUnknown
	}
}
