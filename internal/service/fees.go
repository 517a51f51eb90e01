package service

import (
	"github.com/punchamoorthee/paysync/internal/config"
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeSchedule is the single place convenience fees are computed, for every channel.
type FeeSchedule struct {
	CardPercent decimal.Decimal
	BankFlat    decimal.Decimal
}

func NewFeeSchedule(cfg config.Fees) FeeSchedule {
	return FeeSchedule{CardPercent: cfg.CardPercent, BankFlat: cfg.BankFlat}
}

// Quote returns the fee for charging amount through method. savedKind is only
// consulted for saved instruments.
func (f FeeSchedule) Quote(method domain.ChargeMethod, savedKind domain.InstrumentKind, amount decimal.Decimal) decimal.Decimal {
	switch method {
	case domain.MethodNewCard:
		return f.card(amount)
	case domain.MethodNewBank:
		return f.BankFlat
	case domain.MethodSavedInstrument:
		if savedKind == domain.InstrumentBank {
			return f.BankFlat
		}
		return f.card(amount)
	default:
		return decimal.Zero
	}
}

func (f FeeSchedule) card(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(f.CardPercent).Div(hundred).Round(2)
}
