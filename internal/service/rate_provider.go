package service

import (
	"context"
	"fmt"
	"strings"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/pkg/apperror"

	"github.com/shopspring/decimal"
)

// StaticRateProvider converts with a fixed rate from configuration.
type StaticRateProvider struct {
	sourceCurrency string
	rate           decimal.Decimal
}

// NewStaticRateProvider returns a provider converting sourceCurrency at rate.
func NewStaticRateProvider(sourceCurrency string, rate decimal.Decimal) *StaticRateProvider {
	return &StaticRateProvider{sourceCurrency: strings.ToUpper(sourceCurrency), rate: rate}
}

// Convert returns amount*rate rounded down to the settlement scale.
func (p *StaticRateProvider) Convert(_ context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if !strings.EqualFold(currency, p.sourceCurrency) {
		return decimal.Zero, apperror.Validation(fmt.Sprintf("unsupported currency %q", currency))
	}
	converted := domain.RoundAmount(amount.Mul(p.rate))
	if err := domain.ValidateAmount(converted); err != nil {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}
	return converted, nil
}
