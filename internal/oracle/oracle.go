// Package oracle supplies current bid/ask/last quotes per symbol. The
// engine only ever reads quotes; feeds (websocket, REST poller, local
// simulator) write them into the in-memory book.
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/margex/gotrade/internal/domain"
)

// Quote is one observation of a symbol's market.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Timestamp time.Time       `json:"timestamp"`
}

// Oracle is the read port the engine depends on. Implementations must
// fail with PriceUnavailable rather than return a quote older than
// their staleness bound.
type Oracle interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// TickHandler observes every accepted quote update. Used by the
// settlement coordinator to trigger mark-to-market sweeps.
type TickHandler func(q Quote)

// Book is the in-memory quote store. Reads are lock-free in spirit: a
// short RLock over a map lookup, no I/O, may be stale by at most one
// tick interval.
type Book struct {
	maxAge time.Duration

	mu     sync.RWMutex
	quotes map[string]Quote

	handlerMu sync.RWMutex
	handlers  []TickHandler
}

// NewBook creates a quote book that rejects quotes older than maxAge.
func NewBook(maxAge time.Duration) *Book {
	return &Book{
		maxAge: maxAge,
		quotes: make(map[string]Quote),
	}
}

// Quote returns the latest quote for symbol, or PriceUnavailable when
// the symbol is unknown or the quote violates the staleness bound.
func (b *Book) Quote(_ context.Context, symbol string) (Quote, error) {
	b.mu.RLock()
	q, ok := b.quotes[symbol]
	b.mu.RUnlock()

	if !ok {
		return Quote{}, domain.ErrPriceUnavailable(symbol, nil)
	}
	if b.maxAge > 0 && time.Since(q.Timestamp) > b.maxAge {
		return Quote{}, domain.ErrPriceUnavailable(symbol, nil).
			WithContext("age", time.Since(q.Timestamp).String())
	}
	return q, nil
}

// Knows reports whether the book has ever seen the symbol, regardless
// of staleness. Used to reject orders for unknown symbols before any
// price lookup.
func (b *Book) Knows(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.quotes[symbol]
	return ok
}

// Publish stores a quote and notifies tick handlers. Quotes older than
// the one already stored are dropped.
func (b *Book) Publish(q Quote) {
	b.mu.Lock()
	if cur, ok := b.quotes[q.Symbol]; ok && q.Timestamp.Before(cur.Timestamp) {
		b.mu.Unlock()
		return
	}
	b.quotes[q.Symbol] = q
	b.mu.Unlock()

	b.handlerMu.RLock()
	handlers := b.handlers
	b.handlerMu.RUnlock()
	for _, h := range handlers {
		h(q)
	}
}

// OnTick registers a handler invoked for every accepted quote.
func (b *Book) OnTick(h TickHandler) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Symbols lists the symbols currently in the book.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.quotes))
	for s := range b.quotes {
		out = append(out, s)
	}
	return out
}
