package allocation

import "github.com/shopspring/decimal"

// SkipThreshold is the share at or below which a group is not worth a memo pair.
var SkipThreshold = MinorUnit

// Transfer is payment credit moved from the primary account to another account.
type Transfer struct {
	AccountID   int64
	AccountName string
	Amount      decimal.Decimal
	Applied     []Applied
}

// Plan is the full multi-party distribution of one payment.
type Plan struct {
	Primary         Result
	Transfers       []Transfer
	SkippedAccounts []int64
	Undistributed   decimal.Decimal
}

type group struct {
	accountID   int64
	accountName string
	invoices    []Invoice
	total       decimal.Decimal
}

// partition splits invoices into the primary account's and the other
// accounts' groups, keeping groups in order of first appearance.
func partition(primaryAccountID int64, invoices []Invoice) ([]Invoice, []*group) {
	var primary []Invoice
	var groups []*group
	index := map[int64]*group{}
	for _, inv := range invoices {
		if inv.AccountID == primaryAccountID {
			primary = append(primary, inv)
			continue
		}
		g, ok := index[inv.AccountID]
		if !ok {
			g = &group{accountID: inv.AccountID, accountName: inv.AccountName, total: decimal.Zero}
			index[inv.AccountID] = g
			groups = append(groups, g)
		}
		g.invoices = append(g.invoices, inv)
		if inv.Balance.IsPositive() {
			g.total = g.total.Add(inv.Balance)
		}
	}
	return primary, groups
}

// Distribute allocates amount to the primary account's invoices first, then
// spreads what is left over the other accounts' invoice groups. A group whose
// share is at or below SkipThreshold is skipped and the next group is still
// processed. Whatever cannot be placed is reported as Undistributed.
func Distribute(amount decimal.Decimal, primaryAccountID int64, invoices []Invoice) Plan {
	primary, groups := partition(primaryAccountID, invoices)

	plan := Plan{Primary: Cents(amount, primary)}
	remaining := plan.Primary.Remainder

	for _, g := range groups {
		share := decimal.Min(remaining, g.total)
		if share.LessThanOrEqual(SkipThreshold) {
			plan.SkippedAccounts = append(plan.SkippedAccounts, g.accountID)
			continue
		}
		res := Dollars(share, g.invoices)
		placed := res.Total()
		if !placed.IsPositive() {
			plan.SkippedAccounts = append(plan.SkippedAccounts, g.accountID)
			continue
		}
		plan.Transfers = append(plan.Transfers, Transfer{
			AccountID:   g.accountID,
			AccountName: g.accountName,
			Amount:      placed,
			Applied:     res.Applied,
		})
		remaining = remaining.Sub(placed)
	}

	plan.Undistributed = remaining
	return plan
}

// Distributed is the total moved to other accounts.
func (p Plan) Distributed() decimal.Decimal {
	total := decimal.Zero
	for _, t := range p.Transfers {
		total = total.Add(t.Amount)
	}
	return total
}
