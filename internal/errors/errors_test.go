package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := New(ErrDuplicateKey, "record already exists")

	expected := "[DUPLICATE_KEY] record already exists"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestAppErrorWrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(ErrStorageUnavailable, "cannot open database", cause)

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}

	if !stderrors.Is(err, cause) {
		t.Error("Expected errors.Is to match the wrapped cause")
	}

	expected := "[STORAGE_UNAVAILABLE] cannot open database: disk full"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrUnknownStrategy, "strategy does not exist")

	if !Is(err, ErrUnknownStrategy) {
		t.Error("Expected Is to match the code")
	}

	if Is(err, ErrNotFound) {
		t.Error("Expected Is to reject a different code")
	}

	if Is(nil, ErrNotFound) {
		t.Error("Expected Is to reject nil")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(ErrDuplicateKey, "insert collision")
	outer := fmt.Errorf("storing sale: %w", inner)

	if !Is(outer, ErrDuplicateKey) {
		t.Error("Expected Is to find the code through fmt wrapping")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrUnknownCollection, "no collection named %q", "receipts")

	expected := `[UNKNOWN_COLLECTION] no collection named "receipts"`
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}
