package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := JwtGenerate(7, "camille", "technicien")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		t.Fatalf("JwtValidate: %v", err)
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		t.Fatalf("unexpected claims type %T", parsed.Claims)
	}
	if claims.ID != 7 || claims.Username != "camille" || claims.Role != "technicien" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	t.Setenv("JWT_SECRET", "another-secret")
	if _, err := JwtValidate(token); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
}

func TestValidateStruct_FlattensFieldErrors(t *testing.T) {
	type input struct {
		Email string `validate:"required,email"`
		Label string `validate:"max=3"`
	}
	err := ValidateStruct(&input{Email: "nope", Label: "toolong"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "Email: email") || !strings.Contains(err.Error(), "Label: max") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := ValidateStruct(&input{Email: "a@b.fr", Label: "ok"}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}
