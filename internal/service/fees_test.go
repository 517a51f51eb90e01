package service

import (
	"testing"

	"github.com/punchamoorthee/paysync/internal/config"
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFeeSchedule_Quote(t *testing.T) {
	fees := NewFeeSchedule(config.Fees{CardPercent: dec("2.9"), BankFlat: dec("1.00")})

	tests := []struct {
		name   string
		method domain.ChargeMethod
		kind   domain.InstrumentKind
		amount string
		want   string
	}{
		{"new card", domain.MethodNewCard, "", "100.00", "2.90"},
		{"card rounds to cents", domain.MethodNewCard, "", "33.33", "0.97"},
		{"new bank is flat", domain.MethodNewBank, "", "5000.00", "1.00"},
		{"saved card", domain.MethodSavedInstrument, domain.InstrumentCard, "10.00", "0.29"},
		{"saved bank", domain.MethodSavedInstrument, domain.InstrumentBank, "10.00", "1.00"},
		{"check is free", domain.MethodCheck, "", "250.00", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fees.Quote(tt.method, tt.kind, dec(tt.amount)).StringFixed(2))
		})
	}
}
