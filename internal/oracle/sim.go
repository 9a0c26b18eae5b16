package oracle

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SimFeed publishes a random walk per symbol. Local/dev mode only, the
// engine sees it through the same Book as a real feed.
type SimFeed struct {
	book     *Book
	interval time.Duration
	log      *logrus.Entry

	prices map[string]float64
	spread float64
	rng    *rand.Rand
}

func NewSimFeed(symbols map[string]float64, interval time.Duration, book *Book, log *logrus.Entry) *SimFeed {
	prices := make(map[string]float64, len(symbols))
	for s, p := range symbols {
		prices[s] = p
	}
	return &SimFeed{
		book:     book,
		interval: interval,
		log:      log,
		prices:   prices,
		spread:   0.001,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run publishes one tick per symbol per interval until ctx ends.
func (f *SimFeed) Run(ctx context.Context) {
	f.publishAll() // seed the book so the engine is usable immediately

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.step()
			f.publishAll()
		}
	}
}

func (f *SimFeed) step() {
	for s, p := range f.prices {
		// +-0.2% random walk, floored away from zero
		next := p * (1 + (f.rng.Float64()-0.5)*0.004)
		if next < 0.0001 {
			next = 0.0001
		}
		f.prices[s] = next
	}
}

func (f *SimFeed) publishAll() {
	now := time.Now()
	for s, p := range f.prices {
		mid := decimal.NewFromFloat(p).Round(4)
		half := mid.Mul(decimal.NewFromFloat(f.spread / 2)).Round(4)
		f.book.Publish(Quote{
			Symbol:    s,
			Bid:       mid.Sub(half),
			Ask:       mid.Add(half),
			Last:      mid,
			Timestamp: now,
		})
	}
}
