// settlement/lines.go
package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

// fullTolerance absorbs rounding noise when deciding whether a settlement
// covers the whole balance
var fullTolerance = decimal.New(1, -2)

// State is the arithmetic of one settlement
type State struct {
	InvoiceBalance  decimal.Decimal  `json:"invoiceBalance"`
	RequestedAmount *decimal.Decimal `json:"requestedAmount,omitempty"`
	Amount          decimal.Decimal  `json:"amount"`
	Ratio           decimal.Decimal  `json:"ratio"`
	IsFull          bool             `json:"isFullSettlement"`
}

// ComputeState resolves, validates and proportions the settlement amount
// against the invoice's current balance. Without a requested amount the
// whole balance is settled.
func ComputeState(inv *qbclient.Invoice, requested *decimal.Decimal) (State, error) {
	balance := inv.Balance
	state := State{InvoiceBalance: balance, RequestedAmount: requested}

	switch {
	case requested != nil:
		state.Amount = *requested
	case balance.IsZero() && inv.TotalAmt.IsPositive():
		return state, fmt.Errorf(
			"%w: invoice %s has a balance of 0 but a total of %s; it may already be paid or not yet synced, specify an explicit Amount",
			ErrValidation, inv.Id, inv.TotalAmt.StringFixed(2))
	default:
		state.Amount = balance
	}

	if !state.Amount.IsPositive() {
		return state, fmt.Errorf("%w: settlement amount must be greater than zero", ErrValidation)
	}
	if state.Amount.GreaterThan(balance) {
		return state, fmt.Errorf("%w: settlement amount %s exceeds invoice balance %s",
			ErrValidation, state.Amount.String(), balance.StringFixed(2))
	}

	if balance.IsZero() {
		state.Ratio = decimal.NewFromInt(1)
	} else {
		state.Ratio = state.Amount.Div(balance)
	}
	state.IsFull = state.Amount.GreaterThanOrEqual(balance.Sub(fullTolerance))

	return state, nil
}

// qtyPlaces is the quantity precision QuickBooks accepts
const qtyPlaces = 5

// AdjustLines builds the credit memo lines for a settlement. Only item lines
// are kept. A full settlement copies them unchanged; a partial one scales
// quantity and amount by the ratio, and the cent left over from rounding
// each line goes to the largest line so the lines add up to the scaled total.
func AdjustLines(lines []qbclient.Line, state State) ([]qbclient.Line, error) {
	adjusted := make([]qbclient.Line, 0, len(lines))
	exact := decimal.Zero
	rounded := decimal.Zero

	for _, line := range lines {
		if !line.IsSalesItem() || line.SalesItemLineDetail == nil {
			continue
		}

		detail := *line.SalesItemLineDetail
		out := qbclient.Line{
			DetailType:          line.DetailType,
			Amount:              line.Amount,
			Description:         line.Description,
			SalesItemLineDetail: &detail,
		}

		if !state.IsFull {
			priced := detail.Qty != nil && detail.UnitPrice != nil

			switch {
			case priced:
				exact = exact.Add(detail.UnitPrice.Mul(*detail.Qty).Mul(state.Ratio))
			case line.Amount != nil:
				exact = exact.Add(line.Amount.Mul(state.Ratio))
			}

			if detail.Qty != nil {
				qty := detail.Qty.Mul(state.Ratio).Round(qtyPlaces)
				detail.Qty = &qty
			}

			var amount decimal.Decimal
			switch {
			case priced:
				amount = detail.UnitPrice.Mul(*detail.Qty)
			case line.Amount != nil:
				amount = line.Amount.Mul(state.Ratio)
			}
			amount = amount.Round(2)
			out.Amount = &amount
			rounded = rounded.Add(amount)
		}

		adjusted = append(adjusted, out)
	}

	if len(adjusted) == 0 {
		return nil, fmt.Errorf("%w: invoice has no item lines that can be credited", ErrValidation)
	}

	if !state.IsFull {
		if remainder := exact.Round(2).Sub(rounded); !remainder.IsZero() {
			absorbRemainder(&adjusted[largestLine(adjusted)], remainder)
		}
	}
	return adjusted, nil
}

func largestLine(lines []qbclient.Line) int {
	largest := 0
	for i, line := range lines {
		if line.Amount != nil && line.Amount.Abs().GreaterThan(lines[largest].Amount.Abs()) {
			largest = i
		}
	}
	return largest
}

// absorbRemainder shifts remainder onto the line, keeping Qty x UnitPrice
// equal to the amount. When no quantity at qtyPlaces yields the amount the
// line is sent by amount alone.
func absorbRemainder(line *qbclient.Line, remainder decimal.Decimal) {
	amount := line.Amount.Add(remainder)
	line.Amount = &amount

	detail := line.SalesItemLineDetail
	if detail.Qty == nil || detail.UnitPrice == nil {
		return
	}
	if !detail.UnitPrice.IsZero() {
		qty := amount.Div(*detail.UnitPrice).Round(qtyPlaces)
		if detail.UnitPrice.Mul(qty).Round(2).Equal(amount) {
			detail.Qty = &qty
			return
		}
	}
	detail.Qty = nil
	detail.UnitPrice = nil
}
