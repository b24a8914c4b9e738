// Package feed provides price-feed implementations: a WebSocket client for
// normalized upstream streams and a random-walk simulator for dev runs.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbstack/arbengine/internal/domain"
)

// wsUpdate is the JSON shape of one normalized price record on the upstream
// stream. Venue-specific wire decoding happens before records reach this
// stream.
type wsUpdate struct {
	Venue     string  `json:"venue"`
	Chain     string  `json:"chain"`
	Pair      string  `json:"pair"`
	Price     float64 `json:"price"`
	Volume24h float64 `json:"volume_24h"`
	Liquidity float64 `json:"liquidity"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp string  `json:"ts"`
}

// WSFeed implements domain.PriceFeed over a WebSocket connection to a
// normalized price stream. It reconnects with backoff on disconnect.
type WSFeed struct {
	url    string
	logger *slog.Logger
}

// NewWSFeed creates a feed for the given stream URL.
func NewWSFeed(url string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:    url,
		logger: logger.With(slog.String("component", "ws_feed")),
	}
}

// Subscribe connects and streams updates for the given pairs until ctx is
// cancelled. The returned channel is closed when the context ends.
func (f *WSFeed) Subscribe(ctx context.Context, pairs []string) (<-chan domain.PriceUpdate, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("ws feed: no pairs to subscribe")
	}

	out := make(chan domain.PriceUpdate, 256)
	go func() {
		defer close(out)
		for {
			if err := f.runConnection(ctx, pairs, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				f.logger.Warn("feed disconnected, reconnecting", slog.String("error", err.Error()))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()
	return out, nil
}

func (f *WSFeed) runConnection(ctx context.Context, pairs []string, out chan<- domain.PriceUpdate) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("ws feed: dial %s: %w", f.url, err)
	}
	defer conn.Close()

	sub := struct {
		Action string   `json:"action"`
		Pairs  []string `json:"pairs"`
	}{Action: "subscribe", Pairs: pairs}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("ws feed: subscribe: %w", err)
	}
	f.logger.Info("feed subscribed",
		slog.String("url", f.url),
		slog.String("pairs", strings.Join(pairs, ",")),
	)

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ws feed: read: %w", err)
		}
		update, ok := decodeUpdate(data)
		if !ok {
			continue
		}
		select {
		case out <- update:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeUpdate(data []byte) (domain.PriceUpdate, bool) {
	var w wsUpdate
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.PriceUpdate{}, false
	}
	if w.Pair == "" || w.Venue == "" || w.Price <= 0 {
		return domain.PriceUpdate{}, false
	}
	ts := time.Now().UTC()
	if w.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, w.Timestamp); err == nil {
			ts = t
		}
	}
	return domain.PriceUpdate{
		Venue:     w.Venue,
		Chain:     w.Chain,
		Pair:      w.Pair,
		Price:     w.Price,
		Volume24h: w.Volume24h,
		Liquidity: w.Liquidity,
		BestBid:   w.Bid,
		BestAsk:   w.Ask,
		Timestamp: ts,
	}, true
}

// Compile-time interface check.
var _ domain.PriceFeed = (*WSFeed)(nil)
