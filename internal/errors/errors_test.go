package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewError(t *testing.T) {
	err := NewError(20001, "test error")

	if err.Code != 20001 {
		t.Errorf("Expected code 20001, got %d", err.Code)
	}
	if err.Message != "test error" {
		t.Errorf("Expected message 'test error', got '%s'", err.Message)
	}
	if err.Err != nil {
		t.Error("Expected Err to be nil")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewError(20001, "test error"),
			expected: "[20001] test error",
		},
		{
			name:     "with wrapped error",
			err:      NewError(20001, "test error").Wrap(errors.New("original error")),
			expected: "[20001] test error: original error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestAppError_Wrap(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := ErrConversationNotFound.Wrap(originalErr)

	if appErr.Code != ErrConversationNotFound.Code {
		t.Errorf("Expected code %d, got %d", ErrConversationNotFound.Code, appErr.Code)
	}
	if appErr.Message != ErrConversationNotFound.Message {
		t.Errorf("Expected message '%s', got '%s'", ErrConversationNotFound.Message, appErr.Message)
	}
	if appErr.Err != originalErr {
		t.Error("Expected wrapped error to be the original error")
	}
	if !errors.Is(appErr, originalErr) {
		t.Error("Expected errors.Is to match the original error")
	}
}

func TestIs(t *testing.T) {
	if !Is(ErrNotAParticipant, ErrNotAParticipant) {
		t.Error("Expected Is to match the same predefined error")
	}
	if Is(ErrNotAParticipant, ErrConversationNotFound) {
		t.Error("Expected Is to reject a different code")
	}
	if Is(errors.New("plain"), ErrNotAParticipant) {
		t.Error("Expected Is to reject a non-AppError")
	}

	// 包装后仍按错误码匹配
	wrapped := fmt.Errorf("outer: %w", ErrEmptyContent.Wrap(errors.New("inner")))
	if !Is(wrapped, ErrEmptyContent) {
		t.Error("Expected Is to match through wrapping")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(ErrSelfConversation); got != CodeSelfConversation {
		t.Errorf("Expected code %d, got %d", CodeSelfConversation, got)
	}
	if got := GetCode(errors.New("plain")); got != CodeServerError {
		t.Errorf("Expected fallback code %d, got %d", CodeServerError, got)
	}
}

func TestGetMessage(t *testing.T) {
	if got := GetMessage(ErrContentTooLong); got != ErrContentTooLong.Message {
		t.Errorf("Expected '%s', got '%s'", ErrContentTooLong.Message, got)
	}
	if got := GetMessage(errors.New("plain")); got != "internal server error" {
		t.Errorf("Expected fallback message, got '%s'", got)
	}
}
