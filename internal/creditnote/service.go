// creditnote/service.go
package creditnote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

var (
	// ErrInvoiceNotFound is returned when the source invoice does not exist
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrNothingToCredit is returned for invoices without item lines
	ErrNothingToCredit = errors.New("invoice has no item lines to credit")
)

// CredentialSource hands out QuickBooks credentials for a company
type CredentialSource interface {
	Credentials(ctx context.Context, companyID string) (qbclient.Credentials, error)
}

// QuickBooks is the part of the API client credit notes need
type QuickBooks interface {
	GetInvoice(ctx context.Context, creds qbclient.Credentials, invoiceID string) (*qbclient.Invoice, error)
	CreateCreditMemo(ctx context.Context, creds qbclient.Credentials, req *qbclient.CreditMemoRequest) (*qbclient.CreditMemo, error)
	GetCreditMemo(ctx context.Context, creds qbclient.Credentials, creditMemoID string) (*qbclient.CreditMemo, error)
	QueryCreditMemos(ctx context.Context, creds qbclient.Credentials, maxResults int) ([]qbclient.CreditMemo, error)
}

// List is the credit note list response
type List struct {
	CreditNotes []qbclient.CreditMemo `json:"creditNotes"`
	Count       int                   `json:"count"`
}

// Service issues and reads credit notes
type Service struct {
	credentials CredentialSource
	qb          QuickBooks
	logger      *logrus.Logger
	now         func() time.Time
}

// NewService creates a credit note service
func NewService(credentials CredentialSource, qb QuickBooks, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{credentials: credentials, qb: qb, logger: logger, now: time.Now}
}

// CreateForInvoice credits every item line of the invoice in full
func (s *Service) CreateForInvoice(ctx context.Context, companyID, invoiceID string) (*qbclient.CreditMemo, error) {
	creds, err := s.credentials.Credentials(ctx, companyID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.qb.GetInvoice(ctx, creds, invoiceID)
	if err != nil {
		if errors.Is(err, qbclient.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}

	req, err := creditFor(invoice, s.now())
	if err != nil {
		return nil, err
	}

	memo, err := s.qb.CreateCreditMemo(ctx, creds, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create credit memo: %w", err)
	}

	logging.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"company_id":     companyID,
		"invoice_id":     invoiceID,
		"credit_memo_id": memo.Id,
		"total":          memo.TotalAmt.String(),
	}).Info("Created credit memo")
	return memo, nil
}

// Get fetches a credit note by id
func (s *Service) Get(ctx context.Context, companyID, creditNoteID string) (*qbclient.CreditMemo, error) {
	creds, err := s.credentials.Credentials(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return s.qb.GetCreditMemo(ctx, creds, creditNoteID)
}

// List returns up to maxResults credit notes (all when not positive)
func (s *Service) List(ctx context.Context, companyID string, maxResults int) (*List, error) {
	creds, err := s.credentials.Credentials(ctx, companyID)
	if err != nil {
		return nil, err
	}

	memos, err := s.qb.QueryCreditMemos(ctx, creds, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit memos: %w", err)
	}
	if memos == nil {
		memos = []qbclient.CreditMemo{}
	}
	return &List{CreditNotes: memos, Count: len(memos)}, nil
}

// creditFor mirrors the invoice's item lines at their original amounts
func creditFor(invoice *qbclient.Invoice, now time.Time) (*qbclient.CreditMemoRequest, error) {
	lines := make([]qbclient.Line, 0, len(invoice.Line))
	for _, line := range invoice.Line {
		if !line.IsSalesItem() {
			continue
		}
		lines = append(lines, qbclient.Line{
			DetailType:          line.DetailType,
			Amount:              line.Amount,
			Description:         line.Description,
			SalesItemLineDetail: line.SalesItemLineDetail,
		})
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToCredit, invoice.Id)
	}

	ref := invoice.DocNumber
	if ref == "" {
		ref = invoice.Id
	}
	return &qbclient.CreditMemoRequest{
		CustomerRef: invoice.CustomerRef,
		Line:        lines,
		TxnDate:     now.Format("2006-01-02"),
		PrivateNote: "Credit for invoice " + ref,
	}, nil
}
