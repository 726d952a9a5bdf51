package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nanashi07/sminer-sub000/internal/model"
	"github.com/nanashi07/sminer-sub000/internal/utils"
)

// defaultGatewayConfig provides sensible defaults for the quote gateway.
var defaultGatewayConfig = GatewayConfig{
	MaxSymbols: 32,
}

// GatewayConfig configures the quote gateway connector.
type GatewayConfig struct {
	// Endpoint is the gateway websocket URL. Required.
	Endpoint string

	// MaxSymbols caps the number of symbols per subscription.
	MaxSymbols int

	// PingPeriod overrides the client keepalive interval.
	PingPeriod time.Duration
}

// Gateway subscribes to the upstream quote gateway and decodes its quote
// messages into ticks.
//
// Gateway wire format, one JSON object per message:
//
//	{
//		"symbol": "TQQQ",
//		"price": "42.1500",
//		"time": 1634567890123,
//		"kind": 0,
//		"phase": 1,
//		"day_volume": 1253411,
//		"change": "-0.35"
//	}
//
// Price and change arrive as strings; they are parsed through decimal to
// preserve the gateway's precision before narrowing to the tick's float.
type Gateway struct {
	config   GatewayConfig
	validate *validator.Validate
}

// quote is the raw gateway message. Numeric strings keep precision until
// validation has passed.
type quote struct {
	Symbol    string `json:"symbol" validate:"required"`
	Price     string `json:"price" validate:"required,numeric"`
	Time      int64  `json:"time" validate:"required,gt=0"`
	Kind      int    `json:"kind" validate:"gte=0,lte=2"`
	Phase     int    `json:"phase" validate:"gte=0,lte=3"`
	DayVolume int64  `json:"day_volume" validate:"gte=0"`
	Change    string `json:"change"`
}

// NewGateway creates a gateway connector. A nil config uses defaults, but
// the endpoint must always be set.
func NewGateway(cfg *GatewayConfig) (*Gateway, error) {
	if cfg == nil {
		cfg = &defaultGatewayConfig
	}
	if cfg.MaxSymbols <= 0 {
		cfg.MaxSymbols = defaultGatewayConfig.MaxSymbols
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("gateway endpoint is required")
	}
	return &Gateway{config: *cfg, validate: validator.New()}, nil
}

// Subscribe opens the gateway stream for the given symbols and returns
// the decoded tick channel. The channel closes when the connection ends.
func (g *Gateway) Subscribe(ctx context.Context, symbols []string) (<-chan *model.Tick, error) {
	if err := utils.ValidateSymbols(symbols, g.config.MaxSymbols); err != nil {
		return nil, err
	}

	sub, err := json.Marshal(map[string]any{
		"op":      "subscribe",
		"symbols": symbols,
	})
	if err != nil {
		return nil, err
	}

	client, err := NewClient(ctx, ClientConfig{
		Endpoint:             g.config.Endpoint,
		Handler:              g.handleQuote,
		PingPeriod:           g.config.PingPeriod,
		SubscriptionMessages: [][]byte{sub},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create gateway client")
		return nil, err
	}
	return client.TickChan, nil
}

// handleQuote decodes, validates and converts one gateway message.
func (g *Gateway) handleQuote(raw []byte, out chan<- *model.Tick) error {
	var q quote
	if err := json.Unmarshal(raw, &q); err != nil {
		log.Error().Err(err).Msg("invalid quote JSON")
		return err
	}

	if err := g.validate.Struct(&q); err != nil {
		log.Warn().Err(err).Interface("quote", q).Msg("quote validation failed")
		return err
	}

	price, err := decimal.NewFromString(q.Price)
	if err != nil {
		log.Error().Err(err).Msg("invalid quote price")
		return err
	}

	change := decimal.Zero
	if q.Change != "" {
		change, err = decimal.NewFromString(q.Change)
		if err != nil {
			log.Error().Err(err).Msg("invalid quote change")
			return err
		}
	}

	out <- &model.Tick{
		Symbol:    strings.ToUpper(q.Symbol),
		Price:     float32(price.InexactFloat64()),
		Time:      q.Time,
		Kind:      model.QuoteKind(q.Kind),
		Phase:     model.MarketPhase(q.Phase),
		DayVolume: q.DayVolume,
		Change:    float32(change.InexactFloat64()),
	}
	return nil
}
