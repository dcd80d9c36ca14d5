// settlement/lines_test.go
package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func itemLine(desc, qty, price string) qbclient.Line {
	amount := d(qty).Mul(d(price))
	return qbclient.Line{
		DetailType:  qbclient.SalesItemLine,
		Amount:      &amount,
		Description: desc,
		SalesItemLineDetail: &qbclient.SalesItemLineDetail{
			ItemRef:   &qbclient.Reference{Value: "1", Name: "Services"},
			Qty:       dp(qty),
			UnitPrice: dp(price),
		},
	}
}

func TestComputeState(t *testing.T) {
	tests := []struct {
		name      string
		balance   string
		total     string
		requested *decimal.Decimal
		wantErr   bool
		wantAmt   string
		wantRatio decimal.Decimal
		wantFull  bool
	}{
		{
			name:      "partial settlement of a third",
			balance:   "300.00",
			total:     "300.00",
			requested: dp("100.00"),
			wantAmt:   "100",
			wantRatio: d("100").Div(d("300")),
		},
		{
			name:      "defaults to the full balance",
			balance:   "250.00",
			total:     "400.00",
			wantAmt:   "250",
			wantRatio: d("1"),
			wantFull:  true,
		},
		{
			name:      "within a cent counts as full",
			balance:   "100.00",
			total:     "100.00",
			requested: dp("99.995"),
			wantAmt:   "99.995",
			wantRatio: d("99.995").Div(d("100")),
			wantFull:  true,
		},
		{
			name:    "zero balance with positive total needs an explicit amount",
			balance: "0",
			total:   "500.00",
			wantErr: true,
		},
		{
			name:      "amount above balance",
			balance:   "100.00",
			total:     "100.00",
			requested: dp("100.02"),
			wantErr:   true,
		},
		{
			name:      "zero amount",
			balance:   "100.00",
			total:     "100.00",
			requested: dp("0"),
			wantErr:   true,
		},
		{
			name:      "negative amount",
			balance:   "100.00",
			total:     "100.00",
			requested: dp("-5"),
			wantErr:   true,
		},
		{
			name:    "nothing to settle",
			balance: "0",
			total:   "0",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &qbclient.Invoice{Id: "1", Balance: d(tt.balance), TotalAmt: d(tt.total)}
			state, err := ComputeState(inv, tt.requested)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.True(t, state.Amount.Equal(d(tt.wantAmt)), "amount %s", state.Amount)
			assert.True(t, state.Ratio.Equal(tt.wantRatio), "ratio %s", state.Ratio)
			assert.Equal(t, tt.wantFull, state.IsFull)
		})
	}
}

func TestComputeStateZeroBalanceMessage(t *testing.T) {
	_, err := ComputeState(&qbclient.Invoice{Id: "9", Balance: d("0"), TotalAmt: d("500")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "specify an explicit Amount")
	assert.Contains(t, err.Error(), "500.00")
}

func TestAdjustLinesFullSettlementKeepsLines(t *testing.T) {
	lines := []qbclient.Line{
		itemLine("Design", "3", "33.33"),
		itemLine("Hosting", "1", "0.01"),
	}

	adjusted, err := AdjustLines(lines, State{Ratio: d("1"), IsFull: true})
	require.NoError(t, err)
	require.Len(t, adjusted, 2)

	for i := range lines {
		assert.Equal(t, lines[i].Description, adjusted[i].Description)
		assert.True(t, lines[i].Amount.Equal(*adjusted[i].Amount))
		assert.True(t, lines[i].SalesItemLineDetail.Qty.Equal(*adjusted[i].SalesItemLineDetail.Qty))
		assert.True(t, lines[i].SalesItemLineDetail.UnitPrice.Equal(*adjusted[i].SalesItemLineDetail.UnitPrice))
	}
}

func TestAdjustLinesPartialScalesByRatio(t *testing.T) {
	lines := []qbclient.Line{
		itemLine("Consulting", "2", "100"),
		itemLine("Support", "1", "100"),
	}
	state, err := ComputeState(&qbclient.Invoice{Balance: d("300"), TotalAmt: d("300")}, dp("100"))
	require.NoError(t, err)
	require.False(t, state.IsFull)

	adjusted, err := AdjustLines(lines, state)
	require.NoError(t, err)
	require.Len(t, adjusted, 2)

	sum := decimal.Zero
	for i, line := range adjusted {
		wantQty := lines[i].SalesItemLineDetail.Qty.Mul(state.Ratio).Round(5)
		assert.True(t, line.SalesItemLineDetail.Qty.Equal(wantQty), "qty %s", line.SalesItemLineDetail.Qty)
		sum = sum.Add(*line.Amount)
	}
	assert.True(t, sum.Sub(state.Amount).Abs().LessThanOrEqual(d("0.01")), "sum %s", sum)
	assert.Equal(t, "66.67", adjusted[0].Amount.StringFixed(2))
	assert.Equal(t, "33.33", adjusted[1].Amount.StringFixed(2))

	// Originals are untouched
	assert.Equal(t, "2", lines[0].SalesItemLineDetail.Qty.String())
}

func TestAdjustLinesRoundingRemainder(t *testing.T) {
	tests := []struct {
		name    string
		lines   []qbclient.Line
		balance string
		amount  string
	}{
		{
			name:    "ten equal lines",
			lines:   repeatLine(itemLine("Hours", "1", "10.00"), 10),
			balance: "100",
			amount:  "33.33",
		},
		{
			name:    "thirds",
			lines:   repeatLine(itemLine("Licence", "1", "1.00"), 3),
			balance: "3",
			amount:  "2",
		},
		{
			name: "uneven prices",
			lines: []qbclient.Line{
				itemLine("Design", "3", "33.33"),
				itemLine("Hosting", "7", "1.99"),
				itemLine("Support", "1", "0.01"),
				itemLine("Audit", "2", "412.37"),
			},
			balance: "938.67",
			amount:  "123.45",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := ComputeState(&qbclient.Invoice{Balance: d(tt.balance), TotalAmt: d(tt.balance)}, dp(tt.amount))
			require.NoError(t, err)

			adjusted, err := AdjustLines(tt.lines, state)
			require.NoError(t, err)

			sum := decimal.Zero
			for _, line := range adjusted {
				sum = sum.Add(*line.Amount)

				// What QuickBooks recomputes must match what was summed
				sent := line
				sent.RecomputeAmount()
				assert.True(t, sent.Amount.Equal(*line.Amount), "line %s recomputes to %s", line.Amount, sent.Amount)

				if qty := line.SalesItemLineDetail.Qty; qty != nil {
					assert.LessOrEqual(t, -qty.Exponent(), int32(5), "qty %s", qty)
				}
			}
			assert.Equal(t, tt.amount, sum.StringFixed(2))
		})
	}
}

func repeatLine(line qbclient.Line, n int) []qbclient.Line {
	lines := make([]qbclient.Line, n)
	for i := range lines {
		lines[i] = line
	}
	return lines
}

func TestAdjustLinesScalesAmountWithoutUnitPrice(t *testing.T) {
	lines := []qbclient.Line{{
		DetailType:          qbclient.SalesItemLine,
		Amount:              dp("90"),
		SalesItemLineDetail: &qbclient.SalesItemLineDetail{ItemRef: &qbclient.Reference{Value: "4"}},
	}}

	adjusted, err := AdjustLines(lines, State{Ratio: d("0.5")})
	require.NoError(t, err)
	assert.Equal(t, "45", adjusted[0].Amount.String())
}

func TestAdjustLinesDropsNonItemLines(t *testing.T) {
	lines := []qbclient.Line{
		itemLine("Widget", "1", "10"),
		{DetailType: "SubTotalLineDetail", Amount: dp("10")},
		{DetailType: "DiscountLineDetail", Amount: dp("1")},
	}

	adjusted, err := AdjustLines(lines, State{Ratio: d("1"), IsFull: true})
	require.NoError(t, err)
	assert.Len(t, adjusted, 1)
}

func TestAdjustLinesNothingCreditable(t *testing.T) {
	lines := []qbclient.Line{{DetailType: "SubTotalLineDetail", Amount: dp("10")}}

	_, err := AdjustLines(lines, State{Ratio: d("1"), IsFull: true})
	assert.ErrorIs(t, err, ErrValidation)
}
