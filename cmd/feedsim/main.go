// feedsim serves a websocket tick stream with random-walk prices, the
// counterpart of the ws oracle mode. Useful for local runs and load
// tests without a real market data source.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/margex/gotrade/pkg/logger"
)

type tick struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	Timestamp int64   `json:"timestamp"` // unix millis
}

func main() {
	addr := flag.String("listen", ":9090", "listen address")
	symbolsFlag := flag.String("symbols", "BTC-USD,ETH-USD", "comma-separated symbols")
	interval := flag.Duration("interval", 500*time.Millisecond, "tick interval")
	start := flag.Float64("start", 100.0, "starting price for every symbol")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: "info"}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Component("feedsim")

	symbols := strings.Split(*symbolsFlag, ",")
	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		prices[strings.TrimSpace(s)] = *start
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	http.HandleFunc("/ticks", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("upgrade failed")
			return
		}
		defer conn.Close()
		log.Infof("client connected: %s", r.RemoteAddr)

		local := make(map[string]float64, len(prices))
		for s, p := range prices {
			local[s] = p
		}

		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for range ticker.C {
			for symbol, price := range local {
				// random walk, +/-0.2% per step
				price *= 1 + (rand.Float64()-0.5)*0.004
				local[symbol] = price
				spread := price * 0.001
				payload, _ := json.Marshal(tick{
					Symbol:    symbol,
					Bid:       price - spread,
					Ask:       price + spread,
					Last:      price,
					Timestamp: time.Now().UnixMilli(),
				})
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					log.Infof("client gone: %s", r.RemoteAddr)
					return
				}
			}
		}
	})

	log.Infof("feedsim listening on %s (%d symbols)", *addr, len(symbols))
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
