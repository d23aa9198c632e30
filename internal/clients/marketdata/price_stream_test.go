package marketdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezapram/arta/internal/domain"
)

func TestHandleMessageForwardsTicks(t *testing.T) {
	var received map[string]domain.PriceQuote
	ps := NewPriceStream("wss://unused", []string{"btc", "ETH"}, func(quotes map[string]domain.PriceQuote) {
		received = quotes
	}, zerolog.Nop())

	msg := []byte(`{"channel":"tickers","ticks":[
		{"symbol":"btc","price":60123.45,"change_percent":1.5},
		{"symbol":"ETH","price":3000,"change_percent":-0.25}
	]}`)
	require.NoError(t, ps.handleMessage(msg))

	require.Len(t, received, 2)
	btc := received["BTC"]
	assert.True(t, btc.Price.Equal(decimal.NewFromFloat(60123.45)))
	assert.Equal(t, domain.CurrencyUSD, btc.Currency)
	assert.True(t, btc.ChangePercent.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, received["ETH"].ChangePercent.Equal(decimal.NewFromFloat(-0.25)))
}

func TestHandleMessageSkipsInvalidTicks(t *testing.T) {
	var calls int
	ps := NewPriceStream("wss://unused", nil, func(quotes map[string]domain.PriceQuote) {
		calls++
	}, zerolog.Nop())

	// All ticks invalid: the update callback must not fire.
	msg := []byte(`{"channel":"tickers","ticks":[
		{"symbol":"BTC","price":0,"change_percent":0},
		{"symbol":"ETH","price":-1,"change_percent":0}
	]}`)
	require.NoError(t, ps.handleMessage(msg))
	assert.Equal(t, 0, calls)
}

func TestHandleMessageIgnoresOtherChannels(t *testing.T) {
	var calls int
	ps := NewPriceStream("wss://unused", nil, func(quotes map[string]domain.PriceQuote) {
		calls++
	}, zerolog.Nop())

	require.NoError(t, ps.handleMessage([]byte(`{"channel":"heartbeat"}`)))
	assert.Equal(t, 0, calls)

	err := ps.handleMessage([]byte(`{not json`))
	assert.Error(t, err)
}

func TestCalculateBackoff(t *testing.T) {
	ps := NewPriceStream("wss://unused", nil, nil, zerolog.Nop())

	assert.Equal(t, 5*time.Second, ps.calculateBackoff(1))
	assert.Equal(t, 10*time.Second, ps.calculateBackoff(2))
	assert.Equal(t, 40*time.Second, ps.calculateBackoff(4))

	// Capped at the maximum delay no matter how many attempts.
	assert.Equal(t, 5*time.Minute, ps.calculateBackoff(10))
	assert.Equal(t, 5*time.Minute, ps.calculateBackoff(50))
}
