// qbclient/models.go
package qbclient

import (
	"github.com/shopspring/decimal"
)

func init() {
	// QuickBooks expects JSON numbers for amounts and quantities
	decimal.MarshalJSONWithoutQuotes = true
}

// SalesItemLine is the DetailType of item lines. Other lines (subtotals,
// discounts) are passed through untouched.
const SalesItemLine = "SalesItemLineDetail"

// Reference links to another QuickBooks entity
type Reference struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// SalesItemLineDetail carries the item, quantity and unit price of a line
type SalesItemLineDetail struct {
	ItemRef   *Reference       `json:"ItemRef,omitempty"`
	Qty       *decimal.Decimal `json:"Qty,omitempty"`
	UnitPrice *decimal.Decimal `json:"UnitPrice,omitempty"`
}

// Line is an invoice or credit memo line
type Line struct {
	Id                  string               `json:"Id,omitempty"`
	LineNum             int                  `json:"LineNum,omitempty"`
	DetailType          string               `json:"DetailType"`
	Amount              *decimal.Decimal     `json:"Amount,omitempty"`
	Description         string               `json:"Description,omitempty"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

// IsSalesItem reports whether the line is an item line
func (l Line) IsSalesItem() bool {
	return l.DetailType == SalesItemLine
}

// RecomputeAmount sets Amount to Qty x UnitPrice when both are present.
// QuickBooks rejects item lines whose amount does not match.
func (l *Line) RecomputeAmount() {
	if !l.IsSalesItem() || l.SalesItemLineDetail == nil {
		return
	}
	detail := l.SalesItemLineDetail
	if detail.Qty == nil || detail.UnitPrice == nil {
		return
	}
	amount := detail.UnitPrice.Mul(*detail.Qty).Round(2)
	l.Amount = &amount
}

// RecomputeAmounts applies RecomputeAmount to every line
func RecomputeAmounts(lines []Line) {
	for i := range lines {
		lines[i].RecomputeAmount()
	}
}

// Invoice is a QuickBooks invoice
type Invoice struct {
	Id          string          `json:"Id"`
	SyncToken   string          `json:"SyncToken,omitempty"`
	CustomerRef *Reference      `json:"CustomerRef,omitempty"`
	Line        []Line          `json:"Line,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	Balance     decimal.Decimal `json:"Balance"`
	DocNumber   string          `json:"DocNumber,omitempty"`
	TxnDate     string          `json:"TxnDate,omitempty"`
	DueDate     string          `json:"DueDate,omitempty"`
	PrivateNote string          `json:"PrivateNote,omitempty"`
}

// InvoiceRequest is the body of an invoice create
type InvoiceRequest struct {
	CustomerRef *Reference `json:"CustomerRef,omitempty"`
	Line        []Line     `json:"Line"`
	DocNumber   string     `json:"DocNumber,omitempty"`
	TxnDate     string     `json:"TxnDate,omitempty"`
	DueDate     string     `json:"DueDate,omitempty"`
}

// CreditMemo is a QuickBooks credit memo (credit note)
type CreditMemo struct {
	Id          string          `json:"Id"`
	SyncToken   string          `json:"SyncToken,omitempty"`
	CustomerRef *Reference      `json:"CustomerRef,omitempty"`
	Line        []Line          `json:"Line,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	Balance     decimal.Decimal `json:"Balance"`
	DocNumber   string          `json:"DocNumber,omitempty"`
	TxnDate     string          `json:"TxnDate,omitempty"`
	PrivateNote string          `json:"PrivateNote,omitempty"`
}

// CreditMemoRequest is the body of a credit memo create. Amounts are
// positive; QuickBooks treats the document as a credit.
type CreditMemoRequest struct {
	CustomerRef *Reference `json:"CustomerRef,omitempty"`
	Line        []Line     `json:"Line"`
	DocNumber   string     `json:"DocNumber,omitempty"`
	TxnDate     string     `json:"TxnDate,omitempty"`
	PrivateNote string     `json:"PrivateNote,omitempty"`
}

// LinkedTxn applies a payment line to another transaction
type LinkedTxn struct {
	TxnId   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

// PaymentLine is one application of a payment
type PaymentLine struct {
	Amount    decimal.Decimal `json:"Amount"`
	LinkedTxn []LinkedTxn     `json:"LinkedTxn"`
}

// PaymentRequest is the body of a payment create
type PaymentRequest struct {
	CustomerRef *Reference      `json:"CustomerRef,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	TxnDate     string          `json:"TxnDate,omitempty"`
	Line        []PaymentLine   `json:"Line"`
}

// Payment is a QuickBooks payment
type Payment struct {
	Id          string          `json:"Id"`
	SyncToken   string          `json:"SyncToken,omitempty"`
	CustomerRef *Reference      `json:"CustomerRef,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	TxnDate     string          `json:"TxnDate,omitempty"`
}

// CustomerRequest is the body of a customer create
type CustomerRequest struct {
	DisplayName string `json:"DisplayName"`
	CompanyName string `json:"CompanyName,omitempty"`
}

// Customer is a QuickBooks customer
type Customer struct {
	Id          string `json:"Id"`
	SyncToken   string `json:"SyncToken,omitempty"`
	DisplayName string `json:"DisplayName"`
	CompanyName string `json:"CompanyName,omitempty"`
}

// envelope wraps every QuickBooks response
type envelope struct {
	Invoice       *Invoice       `json:"Invoice"`
	CreditMemo    *CreditMemo    `json:"CreditMemo"`
	Payment       *Payment       `json:"Payment"`
	Customer      *Customer      `json:"Customer"`
	QueryResponse *queryResponse `json:"QueryResponse"`
}

type queryResponse struct {
	Invoice    []Invoice    `json:"Invoice"`
	CreditMemo []CreditMemo `json:"CreditMemo"`
	Customer   []Customer   `json:"Customer"`
	MaxResults int          `json:"maxResults"`
}
