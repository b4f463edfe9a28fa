package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name: "basic error",
			appError: &AppError{
				Type:    ErrTypeConfig,
				Message: "configuration is invalid",
			},
			want: "config: configuration is invalid",
		},
		{
			name: "error with code",
			appError: &AppError{
				Type:    ErrTypeContract,
				Message: "storage missing operations",
				Code:    "STORAGE001",
			},
			want: "contract: storage missing operations: code=STORAGE001",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeBackend,
				Message: "redis write failed",
				Cause:   errors.New("network timeout"),
			},
			want: "backend: redis write failed: cause=network timeout",
		},
		{
			name: "error with context",
			appError: &AppError{
				Type:    ErrTypeValidation,
				Message: "field validation failed",
				Context: map[string]interface{}{
					"field": "interval",
				},
			},
			want: "validation: field validation failed: context={field=interval}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appError.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := BackendError("set failed", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should match the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("underlying")

	tests := []struct {
		name string
		err  *AppError
		want ErrorType
	}{
		{"backend", BackendError("msg", cause), ErrTypeBackend},
		{"producer", ProducerError("user:1", cause), ErrTypeProducer},
		{"contract", ContractViolation("msg"), ErrTypeContract},
		{"connection", ConnectionError("msg", cause), ErrTypeConnection},
		{"config", ConfigError("msg"), ErrTypeConfig},
		{"validation", ValidationError("msg"), ErrTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.want {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.want)
			}
			if !IsType(tt.err, tt.want) {
				t.Errorf("IsType(%v) = false, want true", tt.want)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	if IsType(nil, ErrTypeBackend) {
		t.Error("IsType(nil) should be false")
	}
	if IsType(fmt.Errorf("plain"), ErrTypeBackend) {
		t.Error("IsType(plain error) should be false")
	}
	if GetType(fmt.Errorf("plain")) != "" {
		t.Error("GetType(plain error) should be empty")
	}
}

func TestWithContextAndCode(t *testing.T) {
	err := ContractViolation("missing method").
		WithCode("CONTRACT001").
		WithContext("method", "SetIfNotExists")

	if err.Code != "CONTRACT001" {
		t.Errorf("Code = %q", err.Code)
	}
	if err.Context["method"] != "SetIfNotExists" {
		t.Errorf("Context not recorded: %v", err.Context)
	}
}
