// settlement/handler_test.go
package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eGGnogSC/qbinvoice/internal/auth"
	"github.com/eGGnogSC/qbinvoice/internal/respond"
	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

func serveSettle(t *testing.T, svc *Service, body string) (*httptest.ResponseRecorder, respond.Envelope) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	router := mux.NewRouter()
	router.HandleFunc("/api/invoices/{invoiceId}/settle", NewHandler(svc, logger).SettleHandler).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/130/settle?companyId=9341", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env respond.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestSettleHandlerSuccess(t *testing.T) {
	qb := &mockQuickBooks{}
	qb.On("GetInvoice", mock.Anything, testCreds, "130").Return(testInvoice("300"), nil).Once()
	qb.On("CreateCreditMemo", mock.Anything, testCreds, mock.Anything).Return(&qbclient.CreditMemo{Id: "CM-7"}, nil).Once()
	qb.On("CreatePayment", mock.Anything, testCreds, mock.Anything).Return(&qbclient.Payment{Id: "P-7"}, nil).Once()
	qb.On("GetInvoice", mock.Anything, testCreds, "130").Return(testInvoice("200"), nil).Once()

	rec, env := serveSettle(t, newTestService(qb, nil), `{"Amount": 100}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Contains(t, env.Message, "CM-7")
	assert.Contains(t, env.Message, "200.00")

	data := env.Data.(map[string]interface{})
	assert.Equal(t, true, data["balanceConfirmed"])
	assert.Equal(t, 200.0, data["finalBalance"])
}

func TestSettleHandlerUnconfirmed(t *testing.T) {
	qb := &mockQuickBooks{}
	qb.On("GetInvoice", mock.Anything, testCreds, "130").Return(testInvoice("300"), nil)
	qb.On("CreateCreditMemo", mock.Anything, testCreds, mock.Anything).Return(&qbclient.CreditMemo{Id: "CM-8"}, nil).Once()
	qb.On("CreatePayment", mock.Anything, testCreds, mock.Anything).Return(&qbclient.Payment{Id: "P-8"}, nil).Once()

	rec, env := serveSettle(t, newTestService(qb, nil), ``)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Contains(t, env.Message, "not yet updated")
}

func TestSettleHandlerErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(qb *mockQuickBooks)
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name: "amount above balance",
			setup: func(qb *mockQuickBooks) {
				qb.On("GetInvoice", mock.Anything, testCreds, "130").Return(testInvoice("300"), nil).Once()
			},
			body:       `{"Amount": 1000}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "exceeds invoice balance",
		},
		{
			name:       "malformed body",
			setup:      func(qb *mockQuickBooks) {},
			body:       `{"Amount": `,
			wantStatus: http.StatusBadRequest,
			wantError:  "valid JSON",
		},
		{
			name: "invoice not found",
			setup: func(qb *mockQuickBooks) {
				qb.On("GetInvoice", mock.Anything, testCreds, "130").Return(nil, qbclient.ErrNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
			wantError:  "invoice not found",
		},
		{
			name: "payment failure after credit memo",
			setup: func(qb *mockQuickBooks) {
				qb.On("GetInvoice", mock.Anything, testCreds, "130").Return(testInvoice("300"), nil).Once()
				qb.On("CreateCreditMemo", mock.Anything, testCreds, mock.Anything).Return(&qbclient.CreditMemo{Id: "CM-42"}, nil).Once()
				qb.On("CreatePayment", mock.Anything, testCreds, mock.Anything).
					Return(nil, &qbclient.APIError{StatusCode: 400, Code: "6000", Message: "Business validation error"}).Once()
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "CM-42",
		},
		{
			name: "credit memo rejected upstream",
			setup: func(qb *mockQuickBooks) {
				qb.On("GetInvoice", mock.Anything, testCreds, "130").Return(testInvoice("300"), nil).Once()
				qb.On("CreateCreditMemo", mock.Anything, testCreds, mock.Anything).
					Return(nil, &qbclient.APIError{StatusCode: 400, Code: "6070", Message: "Amount mismatch"}).Once()
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "Amount mismatch",
		},
		{
			name: "circuit open",
			setup: func(qb *mockQuickBooks) {
				qb.On("GetInvoice", mock.Anything, testCreds, "130").Return(nil, qbclient.ErrUnavailable).Once()
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := &mockQuickBooks{}
			tt.setup(qb)

			rec, env := serveSettle(t, newTestService(qb, nil), tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, env.Success)
			assert.Contains(t, env.Error, tt.wantError)
		})
	}
}

func TestSettleHandlerAuthRequired(t *testing.T) {
	creds := credentialFunc(func(context.Context, string) (qbclient.Credentials, error) {
		return qbclient.Credentials{}, auth.ErrAuthRequired
	})

	rec, env := serveSettle(t, NewService(creds, &mockQuickBooks{}), ``)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, env.Error, "/auth/authorize")
}
