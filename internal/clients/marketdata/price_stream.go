package marketdata

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"

	"github.com/rezapram/arta/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// UpdateFunc receives batches of live crypto ticks from the stream.
type UpdateFunc func(quotes map[string]domain.PriceQuote)

// PriceStream maintains a WebSocket subscription for real-time crypto
// prices. Stocks and gold poll over REST; crypto trades around the clock,
// so it gets the push channel.
type PriceStream struct {
	url        string
	symbols    []string
	httpClient *http.Client
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	onUpdate UpdateFunc
	log      zerolog.Logger

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// Cloudflare negotiates HTTP/2 via TLS ALPN, but the WebSocket upgrade
// handshake requires HTTP/1.1.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewPriceStream creates a new crypto price stream client. onUpdate is
// called from the read loop goroutine for every tick batch.
func NewPriceStream(url string, symbols []string, onUpdate UpdateFunc, log zerolog.Logger) *PriceStream {
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		normalized = append(normalized, domain.NormalizeSymbol(s))
	}
	return &PriceStream{
		url:        url,
		symbols:    normalized,
		httpClient: createHTTP1Client(),
		onUpdate:   onUpdate,
		log:        log.With().Str("component", "price_stream").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// Start initializes the WebSocket connection and starts the read loop
func (ps *PriceStream) Start() error {
	ps.log.Info().Msg("Starting price stream client")

	if err := ps.Connect(); err != nil {
		ps.log.Warn().Err(err).Msg("Initial WebSocket connection failed, will retry in background")
		go ps.reconnectLoop()
		return err
	}

	ps.mu.RLock()
	ctx := ps.connCtx
	ps.mu.RUnlock()
	go ps.readMessages(ctx)

	ps.log.Info().Msg("Price stream client started successfully")
	return nil
}

// Stop gracefully shuts down the WebSocket connection
func (ps *PriceStream) Stop() error {
	ps.mu.Lock()
	if ps.stopped {
		ps.mu.Unlock()
		return nil
	}
	ps.stopped = true
	ps.mu.Unlock()

	ps.log.Info().Msg("Stopping price stream client")
	close(ps.stopChan)
	return ps.Disconnect()
}

// Connect establishes the WebSocket connection and subscribes to the
// configured symbols.
func (ps *PriceStream) Connect() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.log.Info().Str("url", ps.url).Msg("Connecting to price stream")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, ps.url, &websocket.DialOptions{
		HTTPClient: ps.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	// Long-lived context for the connection, cancelled on disconnect
	connCtx, connCancel := context.WithCancel(context.Background())
	ps.conn = conn
	ps.connCtx = connCtx
	ps.cancelFunc = connCancel
	ps.connected = true

	if err := ps.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		ps.conn = nil
		ps.connCtx = nil
		ps.cancelFunc = nil
		ps.connected = false
		return fmt.Errorf("failed to subscribe to tickers: %w", err)
	}

	ps.log.Info().Msg("Successfully connected to price stream")
	return nil
}

// Disconnect closes the WebSocket connection
func (ps *PriceStream) Disconnect() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.conn == nil {
		return nil
	}

	ps.log.Info().Msg("Disconnecting from price stream")

	if ps.cancelFunc != nil {
		ps.cancelFunc()
		ps.cancelFunc = nil
	}

	err := ps.conn.Close(websocket.StatusNormalClosure, "")

	ps.conn = nil
	ps.connCtx = nil
	ps.connected = false

	if err != nil {
		return fmt.Errorf("error closing WebSocket: %w", err)
	}
	return nil
}

// subscribe sends the ticker subscription message.
func (ps *PriceStream) subscribe(ctx context.Context) error {
	// Stream protocol: {"op": "subscribe", "channel": "tickers", "symbols": [...]}
	msg := map[string]interface{}{
		"op":      "subscribe",
		"channel": "tickers",
		"symbols": ps.symbols,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := ps.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send subscription message: %w", err)
	}

	ps.log.Info().Strs("symbols", ps.symbols).Msg("Subscribed to ticker channel")
	return nil
}

// readMessages continuously reads messages from the WebSocket.
func (ps *PriceStream) readMessages(ctx context.Context) {
	defer func() {
		ps.log.Info().Msg("Read loop stopped")
		ps.mu.RLock()
		stopped := ps.stopped
		ps.mu.RUnlock()
		if !stopped {
			go ps.reconnectLoop()
		}
	}()

	for {
		select {
		case <-ps.stopChan:
			return
		case <-ctx.Done():
			ps.log.Debug().Msg("Read loop context cancelled")
			return
		default:
		}

		ps.mu.RLock()
		conn := ps.conn
		ps.mu.RUnlock()

		if conn == nil {
			ps.log.Warn().Msg("Connection is nil, stopping read loop")
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				ps.log.Info().Int("status", int(closeStatus)).Msg("WebSocket closed normally")
			} else if ctx.Err() != nil {
				ps.log.Debug().Msg("Read cancelled by context")
			} else {
				ps.log.Error().Err(err).Msg("Unexpected WebSocket read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			ps.log.Debug().Int("type", int(msgType)).Msg("Ignoring non-text message")
			continue
		}

		if err := ps.handleMessage(message); err != nil {
			ps.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle stream message")
			// Continue reading despite parse errors
		}
	}
}

// tickerMessage is one stream payload.
type tickerMessage struct {
	Channel string `json:"channel"`
	Ticks   []struct {
		Symbol        string      `json:"symbol"`
		Price         json.Number `json:"price"`
		ChangePercent json.Number `json:"change_percent"`
	} `json:"ticks"`
}

// handleMessage parses a stream message and forwards valid ticks.
func (ps *PriceStream) handleMessage(message []byte) error {
	var msg tickerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("failed to parse stream message: %w", err)
	}

	if msg.Channel != "tickers" {
		ps.log.Debug().Str("channel", msg.Channel).Msg("Ignoring non-ticker message")
		return nil
	}
	if len(msg.Ticks) == 0 {
		return nil
	}

	now := time.Now()
	quotes := make(map[string]domain.PriceQuote, len(msg.Ticks))
	for _, tick := range msg.Ticks {
		price, err := decimal.NewFromString(tick.Price.String())
		if err != nil || !price.IsPositive() {
			ps.log.Warn().
				Str("symbol", tick.Symbol).
				Str("price", tick.Price.String()).
				Msg("Skipping tick with invalid price")
			continue
		}
		change := decimal.Zero
		if tick.ChangePercent != "" {
			if parsed, err := decimal.NewFromString(tick.ChangePercent.String()); err == nil {
				change = parsed
			}
		}
		quotes[domain.NormalizeSymbol(tick.Symbol)] = domain.PriceQuote{
			Price:         price,
			Currency:      domain.CurrencyUSD,
			ChangePercent: change,
			AsOf:          now,
		}
	}

	if len(quotes) > 0 && ps.onUpdate != nil {
		ps.onUpdate(quotes)
	}
	return nil
}

// reconnectLoop handles automatic reconnection with exponential backoff
func (ps *PriceStream) reconnectLoop() {
	ps.mu.Lock()
	if ps.reconnecting || ps.stopped {
		ps.mu.Unlock()
		return
	}
	ps.reconnecting = true
	ps.mu.Unlock()

	defer func() {
		ps.mu.Lock()
		ps.reconnecting = false
		ps.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-ps.stopChan:
			ps.log.Info().Msg("Reconnection loop stopped by user")
			return
		default:
		}

		ps.mu.RLock()
		stopped := ps.stopped
		ps.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		delay := ps.calculateBackoff(attempt)

		if attempt <= maxReconnectAttempts {
			ps.log.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Attempting to reconnect to price stream")
		} else {
			ps.log.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Reconnection attempt (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-ps.stopChan:
			return
		}

		if err := ps.Connect(); err != nil {
			ps.log.Error().Err(err).
				Int("attempt", attempt).
				Msg("Reconnection failed")
			continue
		}

		ps.log.Info().
			Int("attempt", attempt).
			Msg("Successfully reconnected to price stream")

		ps.mu.RLock()
		ctx := ps.connCtx
		ps.mu.RUnlock()
		go ps.readMessages(ctx)
		return
	}
}

// calculateBackoff calculates exponential backoff delay
func (ps *PriceStream) calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// IsConnected returns current connection status
func (ps *PriceStream) IsConnected() bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.connected
}
