package oracle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// wsTick is the wire shape published by the tick feed.
type wsTick struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Timestamp int64           `json:"timestamp"` // unix millis
}

// WSFeed consumes a websocket tick stream and publishes quotes into a
// Book. It reconnects with exponential backoff until its context is
// cancelled.
type WSFeed struct {
	url  string
	book *Book
	log  *logrus.Entry

	readTimeout time.Duration
	maxBackoff  time.Duration
}

func NewWSFeed(url string, book *Book, log *logrus.Entry) *WSFeed {
	return &WSFeed{
		url:         url,
		book:        book,
		log:         log,
		readTimeout: 30 * time.Second,
		maxBackoff:  30 * time.Second,
	}
}

// Run blocks until ctx is cancelled, maintaining the connection.
func (f *WSFeed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := f.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.WithError(err).Warnf("tick feed disconnected, reconnecting in %v", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
	}
}

func (f *WSFeed) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial tick feed")
	}
	defer conn.Close()

	f.log.Infof("tick feed connected: %s", f.url)

	// Close the conn when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read tick")
		}
		var tick wsTick
		if err := json.Unmarshal(msg, &tick); err != nil {
			f.log.WithError(err).Warn("malformed tick dropped")
			continue
		}
		if tick.Symbol == "" {
			continue
		}
		f.book.Publish(Quote{
			Symbol:    tick.Symbol,
			Bid:       tick.Bid,
			Ask:       tick.Ask,
			Last:      tick.Last,
			Timestamp: time.UnixMilli(tick.Timestamp),
		})
	}
}
