package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/margex/gotrade/pkg/cache"
)

// RESTFeed polls an HTTP quote endpoint and publishes into a Book.
// Fallback path for environments without a streaming feed.
type RESTFeed struct {
	client   *resty.Client
	book     *Book
	symbols  []string
	interval time.Duration
	log      *logrus.Entry

	// Symbols the endpoint keeps failing on are benched for a while so
	// one bad symbol cannot dominate the poll budget.
	bench        *cache.InMemoryCache[string, int]
	benchAfter   int
	benchPenalty time.Duration
}

func NewRESTFeed(baseURL string, symbols []string, interval time.Duration, book *Book, log *logrus.Entry) *RESTFeed {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// Honor Retry-After on 429 backpressure.
			if resp.StatusCode() == 429 {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 5 * time.Second, nil
			}
			return 0, nil
		})

	return &RESTFeed{
		client:       client,
		book:         book,
		symbols:      symbols,
		interval:     interval,
		log:          log,
		bench:        cache.NewInMemoryCache[string, int](30 * time.Second),
		benchAfter:   5,
		benchPenalty: 30 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (f *RESTFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range f.symbols {
				if fails, _ := f.bench.Get(sym); fails >= f.benchAfter {
					continue
				}
				if err := f.pollOne(ctx, sym); err != nil {
					fails, _ := f.bench.Get(sym)
					f.bench.Set(sym, fails+1, f.benchPenalty)
					f.log.WithError(err).Warnf("quote poll failed: %s", sym)
					continue
				}
				f.bench.Delete(sym)
			}
		}
	}
}

func (f *RESTFeed) pollOne(ctx context.Context, symbol string) error {
	var tick wsTick
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&tick).
		Get("/quote")
	if err != nil {
		return errors.Wrap(err, "get quote")
	}
	if resp.IsError() {
		return fmt.Errorf("quote endpoint returned %d", resp.StatusCode())
	}
	if tick.Symbol == "" {
		tick.Symbol = symbol
	}
	ts := time.UnixMilli(tick.Timestamp)
	if tick.Timestamp == 0 {
		ts = time.Now()
	}
	f.book.Publish(Quote{
		Symbol:    tick.Symbol,
		Bid:       tick.Bid,
		Ask:       tick.Ask,
		Last:      tick.Last,
		Timestamp: ts,
	})
	return nil
}
