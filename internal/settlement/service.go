// settlement/service.go
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/internal/metrics"
	"github.com/eGGnogSC/qbinvoice/internal/retry"
	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

const txnDateLayout = "2006-01-02"

// CredentialSource hands out QuickBooks credentials for a company
type CredentialSource interface {
	Credentials(ctx context.Context, companyID string) (qbclient.Credentials, error)
}

// QuickBooks is the part of the API client a settlement needs
type QuickBooks interface {
	GetInvoice(ctx context.Context, creds qbclient.Credentials, invoiceID string) (*qbclient.Invoice, error)
	CreateCreditMemo(ctx context.Context, creds qbclient.Credentials, req *qbclient.CreditMemoRequest) (*qbclient.CreditMemo, error)
	CreatePayment(ctx context.Context, creds qbclient.Credentials, req *qbclient.PaymentRequest) (*qbclient.Payment, error)
}

// Request is the caller's settlement input. All fields are optional.
type Request struct {
	Amount      *decimal.Decimal `json:"Amount,omitempty"`
	TxnDate     string           `json:"TxnDate,omitempty"`
	Description string           `json:"Description,omitempty"`
}

// Result describes a settlement whose credit memo and payment both exist
type Result struct {
	CreditMemo       *qbclient.CreditMemo `json:"creditMemo"`
	Payment          *qbclient.Payment    `json:"payment"`
	Settlement       State                `json:"settlement"`
	FinalBalance     decimal.Decimal      `json:"finalBalance"`
	BalanceConfirmed bool                 `json:"balanceConfirmed"`
}

// Service settles invoices with a credit memo plus an applied payment
type Service struct {
	credentials CredentialSource
	qb          QuickBooks
	poll        retry.Config
	logger      *logrus.Logger
	metrics     *metrics.Collector
	now         func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithPollConfig overrides the balance confirmation schedule
func WithPollConfig(cfg retry.Config) Option {
	return func(s *Service) { s.poll = cfg }
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used for default transaction dates
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a settlement service
func NewService(credentials CredentialSource, qb QuickBooks, opts ...Option) *Service {
	s := &Service{
		credentials: credentials,
		qb:          qb,
		poll:        retry.DefaultPollConfig(),
		logger:      logrus.StandardLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settle reduces the balance of invoiceID by the requested amount (or all of
// it). A payment failure after the credit memo exists returns *IncompleteError
// and is never retried. Balance confirmation is best effort.
func (s *Service) Settle(ctx context.Context, companyID, invoiceID string, req Request) (*Result, error) {
	result, err := s.settle(ctx, companyID, invoiceID, req)
	s.metrics.Settlement(outcome(result, err))
	return result, err
}

func (s *Service) settle(ctx context.Context, companyID, invoiceID string, req Request) (*Result, error) {
	log := logging.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"company_id": companyID,
		"invoice_id": invoiceID,
	})

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

	state, err := ComputeState(invoice, req.Amount)
	if err != nil {
		return nil, err
	}

	lines, err := AdjustLines(invoice.Line, state)
	if err != nil {
		return nil, err
	}

	log = log.WithFields(logrus.Fields{
		"balance": state.InvoiceBalance.String(),
		"amount":  state.Amount.String(),
		"ratio":   state.Ratio.String(),
		"full":    state.IsFull,
	})
	log.Info("Settling invoice")

	txnDate := req.TxnDate
	if txnDate == "" {
		txnDate = s.now().Format(txnDateLayout)
	}
	note := req.Description
	if note == "" {
		note = fmt.Sprintf("Settlement of invoice %s: %s of %s", invoiceLabel(invoice),
			state.Amount.StringFixed(2), state.InvoiceBalance.StringFixed(2))
	}

	creditMemo, err := s.qb.CreateCreditMemo(ctx, creds, &qbclient.CreditMemoRequest{
		CustomerRef: invoice.CustomerRef,
		Line:        lines,
		TxnDate:     txnDate,
		PrivateNote: note,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create credit memo: %w", err)
	}
	log = log.WithField("credit_memo_id", creditMemo.Id)
	log.Info("Created credit memo")

	amount := state.Amount.Round(2)
	payment, err := s.qb.CreatePayment(ctx, creds, &qbclient.PaymentRequest{
		CustomerRef: invoice.CustomerRef,
		TotalAmt:    amount,
		TxnDate:     txnDate,
		Line: []qbclient.PaymentLine{{
			Amount:    amount,
			LinkedTxn: []qbclient.LinkedTxn{{TxnId: invoice.Id, TxnType: "Invoice"}},
		}},
	})
	if err != nil {
		log.WithError(err).Error("Payment failed after credit memo was created, manual reconciliation required")
		return nil, &IncompleteError{CreditMemoID: creditMemo.Id, Err: err}
	}
	log.WithField("payment_id", payment.Id).Info("Created payment")

	result := &Result{
		CreditMemo:   creditMemo,
		Payment:      payment,
		Settlement:   state,
		FinalBalance: invoice.Balance,
	}
	s.confirmBalance(ctx, log, creds, invoice, result)
	return result, nil
}

// confirmBalance polls the invoice until its balance moves away from the
// pre-settlement value. Failure only leaves the result unconfirmed.
func (s *Service) confirmBalance(ctx context.Context, log *logrus.Entry, creds qbclient.Credentials, invoice *qbclient.Invoice, result *Result) {
	cfg := s.poll
	cfg.OnAttempt = func(attempt int, _ error, delay time.Duration) {
		log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Debug("Invoice balance unchanged, polling again")
	}

	latest, err := retry.PollUntil(ctx, cfg,
		func(ctx context.Context) (*qbclient.Invoice, error) {
			return s.qb.GetInvoice(ctx, creds, invoice.Id)
		},
		func(inv *qbclient.Invoice) bool {
			return !inv.Balance.Equal(invoice.Balance)
		},
	)
	if latest != nil {
		result.FinalBalance = latest.Balance
	}

	switch {
	case err == nil:
		result.BalanceConfirmed = true
		log.WithField("final_balance", result.FinalBalance.String()).Info("Invoice balance updated")
	case errors.Is(err, retry.ErrPollTimeout):
		log.WithField("final_balance", result.FinalBalance.String()).Warn("Invoice balance not yet updated")
	default:
		log.WithError(err).Warn("Failed to confirm invoice balance")
	}
}

func invoiceLabel(inv *qbclient.Invoice) string {
	if inv.DocNumber != "" {
		return inv.DocNumber
	}
	return inv.Id
}

func outcome(result *Result, err error) string {
	var incomplete *IncompleteError
	switch {
	case err == nil && result.BalanceConfirmed:
		return "completed"
	case err == nil:
		return "unconfirmed"
	case errors.As(err, &incomplete):
		return "incomplete"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvoiceNotFound):
		return "rejected"
	default:
		return "failed"
	}
}
