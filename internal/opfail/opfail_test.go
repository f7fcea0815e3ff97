package opfail_test

import (
	"fmt"
	"testing"

	"github.com/SaintWyss/ragcore/internal/opfail"
)

func TestOperationError(t *testing.T) {
	tests := []struct {
		name     string
		err      *opfail.OperationError
		expected string
	}{
		{
			name: "full error",
			err: &opfail.OperationError{
				Operation: "connect to database",
				Component: "postgres",
				Resource:  "workspaces",
				Cause:     fmt.Errorf("connection timeout"),
			},
			expected: "failed to connect to database, component: postgres, resource: workspaces, cause: connection timeout",
		},
		{
			name: "minimal error",
			err: &opfail.OperationError{
				Operation: "parse config",
				Cause:     fmt.Errorf("invalid yaml"),
			},
			expected: "failed to parse config, cause: invalid yaml",
		},
		{
			name: "no cause",
			err: &opfail.OperationError{
				Operation: "validate input",
				Component: "validator",
			},
			expected: "failed to validate input, component: validator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("OperationError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestOperationError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := &opfail.OperationError{Operation: "test", Cause: cause}

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := &opfail.OperationError{Operation: "test"}
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() with no cause = %v, want nil", unwrapped)
	}
}

func TestFailedTo(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		cause    error
		expected string
	}{
		{"with cause", "connect to database", fmt.Errorf("connection refused"), "failed to connect to database: connection refused"},
		{"without cause", "start server", nil, "failed to start server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := opfail.FailedTo(tt.action, tt.cause)
			if err.Error() != tt.expected {
				t.Errorf("FailedTo() = %q, want %q", err.Error(), tt.expected)
			}
		})
	}
}

func TestFailedToWithDetails(t *testing.T) {
	err := opfail.FailedToWithDetails("upload document", "size=30MiB", fmt.Errorf("exceeds limit"))
	expected := "failed to upload document (size=30MiB): exceeds limit"
	if err.Error() != expected {
		t.Errorf("FailedToWithDetails() = %q, want %q", err.Error(), expected)
	}
}
