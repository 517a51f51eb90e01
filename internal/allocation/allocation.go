// Package allocation maps a payment amount onto open invoice balances.
//
// Cents is used when one payer settles their own invoices and works in integer
// cents. Dollars is used when a payment is spread over unrelated accounts and
// works in decimal currency so the result matches figures already shown to
// the payer. Both conserve the amount exactly: sum(applied)+remainder==amount.
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MinorUnit is the smallest currency unit.
var MinorUnit = decimal.New(1, -2)

// Invoice is an open balance owned by a ledger account.
type Invoice struct {
	EntryID     int64
	AccountID   int64
	AccountName string
	Balance     decimal.Decimal
}

// Applied is the amount put against one invoice.
type Applied struct {
	EntryID int64
	Amount  decimal.Decimal
}

// Result lists the applications in the order they were made and what was
// left of the amount afterwards.
type Result struct {
	Applied   []Applied
	Remainder decimal.Decimal
}

// Total is the sum of applied amounts.
func (r Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Applied {
		total = total.Add(a.Amount)
	}
	return total
}

// toCents truncates so an applied amount never exceeds the decimal balance.
func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Truncate(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// Cents allocates amount to invoices in ascending entry id order.
// The input slice is not modified.
func Cents(amount decimal.Decimal, invoices []Invoice) Result {
	ordered := make([]Invoice, len(invoices))
	copy(ordered, invoices)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EntryID < ordered[j].EntryID
	})

	remaining := toCents(amount)
	var applied []Applied
	for _, inv := range ordered {
		if remaining <= 0 {
			break
		}
		balance := toCents(inv.Balance)
		if balance <= 0 {
			continue
		}
		take := min(balance, remaining)
		applied = append(applied, Applied{EntryID: inv.EntryID, Amount: fromCents(take)})
		remaining -= take
	}

	// Remainder is computed against the original amount so sub-cent input
	// digits are carried in it rather than lost in the cent conversion.
	res := Result{Applied: applied}
	res.Remainder = amount.Sub(res.Total())
	return res
}

// Dollars allocates amount to invoices in the order supplied.
func Dollars(amount decimal.Decimal, invoices []Invoice) Result {
	remaining := amount
	var applied []Applied
	for _, inv := range invoices {
		if remaining.LessThan(MinorUnit) {
			break
		}
		if !inv.Balance.IsPositive() {
			continue
		}
		take := decimal.Min(inv.Balance, remaining)
		applied = append(applied, Applied{EntryID: inv.EntryID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return Result{Applied: applied, Remainder: remaining}
}
