package validators

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

type kycBody struct {
	Aadhaar string `json:"aadhaar" validate:"required,aadhaar"`
	PAN     string `json:"pan" validate:"required,pan"`
}

type priceBody struct {
	Price decimal.Decimal `json:"price" validate:"gt=0"`
}

func decode(t *testing.T, body string, dest any) *pkgerrors.Error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := DecodeJSONBody(req, dest)
	if err == nil {
		return nil
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error got %v", err)
	}
	return typed
}

func TestDecodeJSONBodyAcceptsValidKYC(t *testing.T) {
	var body kycBody
	if err := decode(t, `{"aadhaar":"2345 6789 0123","pan":"abcde1234f"}`, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeJSONBodyRejectsBadKYC(t *testing.T) {
	var body kycBody
	err := decode(t, `{"aadhaar":"1234","pan":"ABC"}`, &body)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if err.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected code %s", err.Code())
	}
	details, ok := err.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", err.Details())
	}
	if details["aadhaar"] == "" || details["pan"] == "" {
		t.Fatalf("expected both fields reported, got %v", details)
	}
}

func TestDecodeJSONBodyValidatesDecimals(t *testing.T) {
	var body priceBody
	if err := decode(t, `{"price":"0"}`, &body); err == nil {
		t.Fatal("expected zero price to fail")
	}
	if err := decode(t, `{"price":"149.50"}`, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !body.Price.Equal(decimal.RequireFromString("149.50")) {
		t.Fatalf("unexpected price %s", body.Price)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var body priceBody
	if err := decode(t, `{"price":"10","tip":"5"}`, &body); err == nil {
		t.Fatal("expected unknown field to fail")
	}
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	var body priceBody
	err := decode(t, `{"price":"10"} {"price":"20"}`, &body)
	if err == nil || err.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	var body struct {
		Notes string `json:"notes"`
	}
	err := decode(t, `{"notes":"`+strings.Repeat("x", MaxBodyBytes)+`"}`, &body)
	if err == nil {
		t.Fatal("expected oversized body to fail")
	}
	details, _ := err.Details().(map[string]any)
	if !strings.Contains(fmt.Sprint(details["error"]), "exceeds") {
		t.Fatalf("unexpected details %v", err.Details())
	}
}
