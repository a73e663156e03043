package validation

import (
	"strings"
	"testing"

	"github.com/vidtube/backend/internal/apperr"
)

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3"`
}

func TestStruct(t *testing.T) {
	if err := Struct(&sample{Email: "a@example.com", Username: "abc"}); err != nil {
		t.Fatalf("expected valid struct, got %v", err)
	}

	err := Struct(&sample{Email: "nope", Username: "ab"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	msg := apperr.Message(err)
	if !strings.Contains(msg, "email must be a valid email address") {
		t.Fatalf("expected email detail, got %q", msg)
	}
	if !strings.Contains(msg, "username must be at least 3 characters long") {
		t.Fatalf("expected username detail, got %q", msg)
	}
}

func TestStructRequired(t *testing.T) {
	err := Struct(&sample{})
	if got := apperr.Message(err); got != "email is required; username is required" {
		t.Fatalf("unexpected message %q", got)
	}
}
