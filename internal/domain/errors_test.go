package domain

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func TestKindOfWrapped(t *testing.T) {
	err := ErrInsufficientBalance(decimal.NewFromInt(500), decimal.NewFromInt(100))
	wrapped := pkgerrors.Wrap(err, "place order")

	if KindOf(wrapped) != KindInsufficientBalance {
		t.Fatalf("kind got=%s want=%s", KindOf(wrapped), KindInsufficientBalance)
	}
	if StatusOf(wrapped) != 400 {
		t.Fatalf("status got=%d want=400", StatusOf(wrapped))
	}
}

func TestKindOfForeignError(t *testing.T) {
	err := errors.New("plain")
	if KindOf(err) != KindInternal {
		t.Fatalf("kind got=%s want=%s", KindOf(err), KindInternal)
	}
	if StatusOf(err) != 500 {
		t.Fatalf("status got=%d want=500", StatusOf(err))
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []error{
		ErrDatabase(errors.New("locked")),
		ErrCache(errors.New("miss")),
		ErrPriceUnavailable("BTC-USD", nil),
	}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Fatalf("%v must be retryable", err)
		}
	}

	terminal := []error{
		ErrValidation("bad"),
		ErrInsufficientBalance(decimal.NewFromInt(1), decimal.Zero),
		ErrMatching("double fill"),
		ErrRateLimited("u1"),
	}
	for _, err := range terminal {
		if IsRetryable(err) {
			t.Fatalf("%v must not be retryable", err)
		}
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrDatabase(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost through Unwrap")
	}
}

func TestWithContext(t *testing.T) {
	err := ErrValidation("bad qty").WithContext("quantity", "-1")
	if err.Context["quantity"] != "-1" {
		t.Fatalf("context not attached: %+v", err.Context)
	}
}
