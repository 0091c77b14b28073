package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedCurrency = errors.New("currency is not supported for settlement")

type RatesConfig struct {
	APIURL             string
	SettlementCurrency string
	AllowedCurrencies  []string
	HTTPTimeout        time.Duration
}

// ExchangeRateClient converts amounts into the settlement currency using a
// "latest?base=X&symbols=Y" style rates endpoint.
type ExchangeRateClient struct {
	cfg  RatesConfig
	http *resty.Client
}

func NewExchangeRateClient(cfg RatesConfig) *ExchangeRateClient {
	cfg.SettlementCurrency = strings.ToUpper(strings.TrimSpace(cfg.SettlementCurrency))
	return &ExchangeRateClient{
		cfg:  cfg,
		http: newHTTPClient(cfg.HTTPTimeout),
	}
}

func (c *ExchangeRateClient) Convert(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == c.cfg.SettlementCurrency {
		return amount, nil
	}
	if !c.allowed(currency) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("base", currency).
		SetQueryParam("symbols", c.cfg.SettlementCurrency).
		Get(c.cfg.APIURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: rates: %v", ErrTransport, err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("%w: rates: status=%d", ErrTransport, resp.StatusCode())
	}

	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return decimal.Zero, fmt.Errorf("%w: rates: %v", ErrTransport, err)
	}
	rate, ok := payload.Rates[c.cfg.SettlementCurrency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rates: no %s rate for %s", ErrTransport, c.cfg.SettlementCurrency, currency)
	}

	return amount.Mul(rate), nil
}

func (c *ExchangeRateClient) allowed(currency string) bool {
	for _, item := range c.cfg.AllowedCurrencies {
		if strings.EqualFold(item, currency) {
			return true
		}
	}
	return false
}
