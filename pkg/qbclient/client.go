// qbclient/client.go
package qbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eGGnogSC/qbinvoice/internal/metrics"
)

const defaultMinorVersion = "75"

// Credentials identify the company and authorize a request
type Credentials struct {
	RealmID     string
	AccessToken string
}

// Config holds the client settings
type Config struct {
	BaseURL      string
	MinorVersion string
	Timeout      time.Duration
}

// Client is the main QuickBooks API client
type Client struct {
	baseURL      string
	minorVersion string
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
	metrics      *metrics.Collector
	logger       *logrus.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new QuickBooks API client
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	minor := cfg.MinorVersion
	if minor == "" {
		minor = defaultMinorVersion
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		minorVersion: minor,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "quickbooks-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
		IsSuccessful: func(err error) bool {
			// Rejections of a single request say nothing about upstream health
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.clientError()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// BreakerState reports the circuit breaker state (closed, half-open, open)
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// CreateInvoice creates an invoice. Item line amounts are recomputed first.
func (c *Client) CreateInvoice(ctx context.Context, creds Credentials, req *InvoiceRequest) (*Invoice, error) {
	RecomputeAmounts(req.Line)

	var env envelope
	if err := c.do(ctx, "create_invoice", creds, http.MethodPost, "invoice", nil, req, &env); err != nil {
		return nil, err
	}
	if env.Invoice == nil {
		return nil, errors.New("quickbooks response did not include the invoice")
	}
	return env.Invoice, nil
}

// GetInvoice fetches an invoice by id
func (c *Client) GetInvoice(ctx context.Context, creds Credentials, invoiceID string) (*Invoice, error) {
	var env envelope
	if err := c.do(ctx, "get_invoice", creds, http.MethodGet, "invoice/"+url.PathEscape(invoiceID), nil, nil, &env); err != nil {
		return nil, err
	}
	if env.Invoice == nil {
		return nil, fmt.Errorf("%w: invoice %s", ErrNotFound, invoiceID)
	}
	return env.Invoice, nil
}

// QueryInvoices lists invoices, at most maxResults when positive
func (c *Client) QueryInvoices(ctx context.Context, creds Credentials, maxResults int) ([]Invoice, error) {
	q := "SELECT * FROM Invoice"
	if maxResults > 0 {
		q += fmt.Sprintf(" MAXRESULTS %d", maxResults)
	}

	qr, err := c.query(ctx, "query_invoices", creds, q)
	if err != nil {
		return nil, err
	}
	return qr.Invoice, nil
}

// FindDuplicateInvoice looks for an existing invoice for the same customer,
// document number and date. It returns nil when there is none.
func (c *Client) FindDuplicateInvoice(ctx context.Context, creds Credentials, customerID, docNumber, txnDate string) (*Invoice, error) {
	conditions := []string{fmt.Sprintf("CustomerRef = '%s'", escapeQuery(customerID))}
	if docNumber != "" {
		conditions = append(conditions, fmt.Sprintf("DocNumber = '%s'", escapeQuery(docNumber)))
	}
	if txnDate != "" {
		conditions = append(conditions, fmt.Sprintf("TxnDate = '%s'", escapeQuery(txnDate)))
	}

	qr, err := c.query(ctx, "find_duplicate_invoice", creds, "SELECT * FROM Invoice WHERE "+strings.Join(conditions, " AND "))
	if err != nil {
		return nil, err
	}
	if len(qr.Invoice) == 0 {
		return nil, nil
	}

	if docNumber != "" {
		for i := range qr.Invoice {
			if qr.Invoice[i].DocNumber == docNumber {
				return &qr.Invoice[i], nil
			}
		}
		return nil, nil
	}

	// Most recent first
	invoices := qr.Invoice
	sort.SliceStable(invoices, func(i, j int) bool { return invoices[i].TxnDate > invoices[j].TxnDate })
	return &invoices[0], nil
}

// CreateCreditMemo creates a credit memo. Item line amounts are recomputed first.
func (c *Client) CreateCreditMemo(ctx context.Context, creds Credentials, req *CreditMemoRequest) (*CreditMemo, error) {
	RecomputeAmounts(req.Line)

	var env envelope
	if err := c.do(ctx, "create_credit_memo", creds, http.MethodPost, "creditmemo", nil, req, &env); err != nil {
		return nil, err
	}
	if env.CreditMemo == nil {
		return nil, errors.New("quickbooks response did not include the credit memo")
	}
	return env.CreditMemo, nil
}

// GetCreditMemo fetches a credit memo by id
func (c *Client) GetCreditMemo(ctx context.Context, creds Credentials, creditMemoID string) (*CreditMemo, error) {
	var env envelope
	if err := c.do(ctx, "get_credit_memo", creds, http.MethodGet, "creditmemo/"+url.PathEscape(creditMemoID), nil, nil, &env); err != nil {
		return nil, err
	}
	if env.CreditMemo == nil {
		return nil, fmt.Errorf("%w: credit memo %s", ErrNotFound, creditMemoID)
	}
	return env.CreditMemo, nil
}

// QueryCreditMemos lists credit memos, at most maxResults when positive
func (c *Client) QueryCreditMemos(ctx context.Context, creds Credentials, maxResults int) ([]CreditMemo, error) {
	q := "SELECT * FROM CreditMemo"
	if maxResults > 0 {
		q += fmt.Sprintf(" MAXRESULTS %d", maxResults)
	}

	qr, err := c.query(ctx, "query_credit_memos", creds, q)
	if err != nil {
		return nil, err
	}
	return qr.CreditMemo, nil
}

// CreatePayment creates a payment
func (c *Client) CreatePayment(ctx context.Context, creds Credentials, req *PaymentRequest) (*Payment, error) {
	var env envelope
	if err := c.do(ctx, "create_payment", creds, http.MethodPost, "payment", nil, req, &env); err != nil {
		return nil, err
	}
	if env.Payment == nil {
		return nil, errors.New("quickbooks response did not include the payment")
	}
	return env.Payment, nil
}

// FindCustomerByName returns the customer with the given display name, or
// nil when there is none
func (c *Client) FindCustomerByName(ctx context.Context, creds Credentials, name string) (*Customer, error) {
	q := fmt.Sprintf("SELECT * FROM Customer WHERE DisplayName = '%s'", escapeQuery(name))

	qr, err := c.query(ctx, "find_customer", creds, q)
	if err != nil {
		return nil, err
	}
	if len(qr.Customer) == 0 {
		return nil, nil
	}
	return &qr.Customer[0], nil
}

// CreateCustomer creates a customer
func (c *Client) CreateCustomer(ctx context.Context, creds Credentials, req *CustomerRequest) (*Customer, error) {
	var env envelope
	if err := c.do(ctx, "create_customer", creds, http.MethodPost, "customer", nil, req, &env); err != nil {
		return nil, err
	}
	if env.Customer == nil {
		return nil, errors.New("quickbooks response did not include the customer")
	}
	return env.Customer, nil
}

func (c *Client) query(ctx context.Context, operation string, creds Credentials, q string) (*queryResponse, error) {
	var env envelope
	if err := c.do(ctx, operation, creds, http.MethodGet, "query", url.Values{"query": {q}}, nil, &env); err != nil {
		return nil, err
	}
	if env.QueryResponse == nil {
		return &queryResponse{}, nil
	}
	return env.QueryResponse, nil
}

// do sends an authenticated request through the circuit breaker and decodes
// the response envelope into out
func (c *Client) do(ctx context.Context, operation string, creds Credentials, method, path string, query url.Values, body, out interface{}) error {
	if creds.RealmID == "" || creds.AccessToken == "" {
		return errors.New("company id and access token are required")
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
	}

	endpoint := c.endpoint(creds.RealmID, path, query)

	respBody, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, operation, method, endpoint, creds.AccessToken, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}

	if err := json.Unmarshal(respBody.([]byte), out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, operation, method, endpoint, accessToken string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequest(operation, 0)
		return nil, fmt.Errorf("quickbooks %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()
	c.metrics.UpstreamRequest(operation, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		c.logger.WithFields(logrus.Fields{
			"operation": operation,
			"status":    resp.StatusCode,
			"code":      apiErr.Code,
		}).Warn("QuickBooks API returned an error")
		return nil, apiErr
	}

	return respBody, nil
}

func (c *Client) endpoint(realmID, path string, query url.Values) string {
	params := url.Values{}
	for k, v := range query {
		params[k] = v
	}
	params.Set("minorversion", c.minorVersion)

	return fmt.Sprintf("%s/v3/company/%s/%s?%s", c.baseURL, url.PathEscape(realmID), path, params.Encode())
}

// escapeQuery doubles single quotes for QuickBooks query literals
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
