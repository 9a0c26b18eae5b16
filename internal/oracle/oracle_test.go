package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/margex/gotrade/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quoteAt(symbol string, last string, ts time.Time) Quote {
	return Quote{
		Symbol:    symbol,
		Bid:       dec(last),
		Ask:       dec(last),
		Last:      dec(last),
		Timestamp: ts,
	}
}

func TestQuoteUnknownSymbol(t *testing.T) {
	b := NewBook(time.Minute)
	_, err := b.Quote(context.Background(), "BTC-USD")
	if !domain.IsKind(err, domain.KindPriceUnavailable) {
		t.Fatalf("expected PRICE_UNAVAILABLE, got %v", err)
	}
	if b.Knows("BTC-USD") {
		t.Fatalf("Knows must be false for unseen symbol")
	}
}

func TestQuoteStaleness(t *testing.T) {
	b := NewBook(time.Minute)
	b.Publish(quoteAt("BTC-USD", "50", time.Now().Add(-2*time.Minute)))

	_, err := b.Quote(context.Background(), "BTC-USD")
	if !domain.IsKind(err, domain.KindPriceUnavailable) {
		t.Fatalf("expected PRICE_UNAVAILABLE for stale quote, got %v", err)
	}
	// Stale symbols are still known; orders on them fail at quote time,
	// not at validation.
	if !b.Knows("BTC-USD") {
		t.Fatalf("Knows must be true for a stale symbol")
	}
}

func TestPublishDropsOlderQuote(t *testing.T) {
	b := NewBook(time.Minute)
	now := time.Now()
	b.Publish(quoteAt("BTC-USD", "50", now))
	b.Publish(quoteAt("BTC-USD", "40", now.Add(-time.Second)))

	q, err := b.Quote(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Last.Equal(dec("50")) {
		t.Fatalf("out-of-order quote overwrote newer one: %s", q.Last)
	}
}

func TestOnTickNotified(t *testing.T) {
	b := NewBook(time.Minute)
	var got []Quote
	b.OnTick(func(q Quote) { got = append(got, q) })

	b.Publish(quoteAt("BTC-USD", "50", time.Now()))
	b.Publish(quoteAt("ETH-USD", "30", time.Now()))

	if len(got) != 2 {
		t.Fatalf("handler calls got=%d want=2", len(got))
	}
	// A dropped out-of-order quote must not notify.
	b.Publish(quoteAt("BTC-USD", "45", time.Now().Add(-time.Hour)))
	if len(got) != 2 {
		t.Fatalf("dropped quote still notified handlers")
	}
}

func TestZeroMaxAgeDisablesStaleness(t *testing.T) {
	b := NewBook(0)
	b.Publish(quoteAt("BTC-USD", "50", time.Now().Add(-24*time.Hour)))
	if _, err := b.Quote(context.Background(), "BTC-USD"); err != nil {
		t.Fatalf("maxAge=0 must accept any age: %v", err)
	}
}
