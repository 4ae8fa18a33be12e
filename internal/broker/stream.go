package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WSQuoteStream is a reusable market-data streaming helper for broker
// plugins whose venue exposes a WebSocket tick feed. It is not used by the
// paper broker (which has no real-time feed of its own) but is the
// contract point any live broker plugin is expected to build against.
type WSQuoteStream struct {
	conn *websocket.Conn
}

// DialWSQuoteStream opens a WebSocket connection to url and returns a
// stream ready to read quotes from.
func DialWSQuoteStream(ctx context.Context, url string) (*WSQuoteStream, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: dial quote stream: %w", err)
	}
	return &WSQuoteStream{conn: conn}, nil
}

// wireQuote is the JSON shape expected on the socket.
type wireQuote struct {
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// Run reads JSON-encoded quotes off the socket until ctx is canceled or the
// connection errors, invoking handler for each one.
func (s *WSQuoteStream) Run(ctx context.Context, handler QuoteHandler) error {
	for {
		var raw wireQuote
		if err := wsjson.Read(ctx, s.conn, &raw); err != nil {
			return err
		}
		handler(Quote{
			Symbol: raw.Symbol,
			LTP:    decimal.NewFromFloat(raw.LTP),
			Open:   decimal.NewFromFloat(raw.Open),
			High:   decimal.NewFromFloat(raw.High),
			Low:    decimal.NewFromFloat(raw.Low),
			Close:  decimal.NewFromFloat(raw.Close),
			Volume: raw.Volume,
			Bid:    decimal.NewFromFloat(raw.Bid),
			Ask:    decimal.NewFromFloat(raw.Ask),
		})
	}
}

// Close closes the underlying connection with a normal closure code.
func (s *WSQuoteStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}
