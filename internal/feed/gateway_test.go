package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

func createValidGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Endpoint:   "wss://stream.example.com/quotes",
		MaxSymbols: 10,
	}
}

// createQuoteMessage builds a realistic gateway quote message.
func createQuoteMessage(symbol, price string, timestamp int64) []byte {
	raw, _ := json.Marshal(map[string]any{
		"symbol":     symbol,
		"price":      price,
		"time":       timestamp,
		"kind":       0,
		"phase":      1,
		"day_volume": 1_253_411,
		"change":     "-0.35",
	})
	return raw
}

func Test_NewGateway(t *testing.T) {
	tests := []struct {
		name        string
		config      *GatewayConfig
		expectError bool
	}{
		{
			name:        "Valid configuration",
			config:      createValidGatewayConfig(),
			expectError: false,
		},
		{
			name:        "Nil configuration has no endpoint",
			config:      nil,
			expectError: true,
		},
		{
			name: "Missing endpoint",
			config: &GatewayConfig{
				MaxSymbols: 10,
			},
			expectError: true,
		},
		{
			name: "Zero max symbols uses default",
			config: &GatewayConfig{
				Endpoint: "wss://stream.example.com/quotes",
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGateway(tt.config)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, g)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, g)
			assert.NotNil(t, g.validate)
			if tt.config.MaxSymbols == 0 {
				assert.Equal(t, defaultGatewayConfig.MaxSymbols, g.config.MaxSymbols)
			}
		})
	}
}

func Test_Gateway_SubscribeRejectsBadSymbols(t *testing.T) {
	g, err := NewGateway(createValidGatewayConfig())
	require.NoError(t, err)

	_, err = g.Subscribe(context.Background(), nil)
	assert.Error(t, err, "empty symbol list must be rejected")

	_, err = g.Subscribe(context.Background(), []string{"bad symbol"})
	assert.Error(t, err)

	many := make([]string, 11)
	for i := range many {
		many[i] = fmt.Sprintf("SYM%d", i)
	}
	_, err = g.Subscribe(context.Background(), many)
	assert.Error(t, err, "symbol limit must be enforced")
}

func Test_Gateway_handleQuote(t *testing.T) {
	g, err := NewGateway(createValidGatewayConfig())
	require.NoError(t, err)

	out := make(chan *model.Tick, 10)

	tests := []struct {
		name        string
		message     []byte
		expectError bool
		expected    *model.Tick
	}{
		{
			name:        "Valid quote",
			message:     createQuoteMessage("TQQQ", "42.1500", 1634567890123),
			expectError: false,
			expected: &model.Tick{
				Symbol:    "TQQQ",
				Price:     42.15,
				Time:      1634567890123,
				Kind:      model.QuoteTrade,
				Phase:     model.PhaseRegular,
				DayVolume: 1_253_411,
				Change:    -0.35,
			},
		},
		{
			name:        "Lowercase symbol is normalized",
			message:     createQuoteMessage("tqqq", "42.1500", 1634567890123),
			expectError: false,
			expected: &model.Tick{
				Symbol:    "TQQQ",
				Price:     42.15,
				Time:      1634567890123,
				Kind:      model.QuoteTrade,
				Phase:     model.PhaseRegular,
				DayVolume: 1_253_411,
				Change:    -0.35,
			},
		},
		{
			name:        "Invalid JSON",
			message:     []byte(`{"symbol": json}`),
			expectError: true,
		},
		{
			name:        "Missing symbol",
			message:     []byte(`{"price":"42.15","time":1634567890123}`),
			expectError: true,
		},
		{
			name:        "Missing price",
			message:     []byte(`{"symbol":"TQQQ","time":1634567890123}`),
			expectError: true,
		},
		{
			name:        "Non-numeric price",
			message:     createQuoteMessage("TQQQ", "forty-two", 1634567890123),
			expectError: true,
		},
		{
			name:        "Zero timestamp",
			message:     createQuoteMessage("TQQQ", "42.1500", 0),
			expectError: true,
		},
		{
			name:        "Phase out of range",
			message:     []byte(`{"symbol":"TQQQ","price":"42.15","time":1634567890123,"phase":9}`),
			expectError: true,
		},
		{
			name:        "Kind out of range",
			message:     []byte(`{"symbol":"TQQQ","price":"42.15","time":1634567890123,"kind":7}`),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.handleQuote(tt.message, out)

			if tt.expectError {
				assert.Error(t, err)
				select {
				case tick := <-out:
					t.Errorf("no tick expected on error, got %+v", tick)
				default:
				}
				return
			}

			require.NoError(t, err)
			select {
			case tick := <-out:
				assert.Equal(t, tt.expected.Symbol, tick.Symbol)
				assert.InDelta(t, tt.expected.Price, tick.Price, 1e-4)
				assert.Equal(t, tt.expected.Time, tick.Time)
				assert.Equal(t, tt.expected.Kind, tick.Kind)
				assert.Equal(t, tt.expected.Phase, tick.Phase)
				assert.Equal(t, tt.expected.DayVolume, tick.DayVolume)
				assert.InDelta(t, tt.expected.Change, tick.Change, 1e-4)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected a decoded tick")
			}
		})
	}
}

func Test_Gateway_handleQuoteEmptyChange(t *testing.T) {
	g, err := NewGateway(createValidGatewayConfig())
	require.NoError(t, err)

	out := make(chan *model.Tick, 1)
	raw, _ := json.Marshal(map[string]any{
		"symbol": "TQQQ",
		"price":  "42.15",
		"time":   int64(1634567890123),
	})
	require.NoError(t, g.handleQuote(raw, out))

	tick := <-out
	assert.Equal(t, float32(0), tick.Change)
	assert.Equal(t, model.PhasePreMarket, tick.Phase, "phase defaults to the zero value")
}
