// auth/pages.go
package auth

import (
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"
)

type successPage struct {
	CompanyID    string
	BaseURL      string
	ExpiresIn    int
	ExpiresHours float64
}

type errorPage struct {
	Error      string
	Suggestion string
}

var successTemplate = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>QuickBooks connected</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 760px; margin: 40px auto; color: #2d3748; }
.company-id { border: 2px solid #48bb78; border-radius: 6px; padding: 12px; font: bold 20px monospace; }
pre { background: #1a202c; color: #e2e8f0; padding: 16px; border-radius: 6px; overflow-x: auto; }
</style>
</head>
<body>
<h1>Authorization successful</h1>
<p>Your company id:</p>
<div class="company-id">{{.CompanyID}}</div>
<p>Tokens are stored and used automatically. The access token expires in {{.ExpiresIn}} seconds ({{printf "%.1f" .ExpiresHours}} hours) and is refreshed on demand.</p>
<h2>Try it</h2>
<pre>
curl {{.BaseURL}}/health

curl -X POST "{{.BaseURL}}/api/invoices?companyId={{.CompanyID}}" \
  -H "Content-Type: application/json" \
  -d '{"CustomerRef": {"value": "1"}, "Line": [{"DetailType": "SalesItemLineDetail", "Description": "Service fee", "SalesItemLineDetail": {"ItemRef": {"value": "2"}, "Qty": 1, "UnitPrice": 100.00}}]}'

curl "{{.BaseURL}}/api/invoices?companyId={{.CompanyID}}"

curl -X POST "{{.BaseURL}}/api/invoices/INVOICE_ID/settle?companyId={{.CompanyID}}" \
  -H "Content-Type: application/json" -d '{"Amount": 50.00}'

curl -X POST "{{.BaseURL}}/api/invoices/INVOICE_ID/credit-note?companyId={{.CompanyID}}"
</pre>
</body>
</html>
`))

var errorTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Authorization failed</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 640px; margin: 40px auto; color: #2d3748; }
.error { border-left: 4px solid #f56565; padding: 12px; background: #fff5f5; }
</style>
</head>
<body>
<h1>Authorization failed</h1>
<div class="error">{{.Error}}</div>
<p>{{.Suggestion}}</p>
<p><a href="/auth/authorize">Try again</a></p>
</body>
</html>
`))

func renderSuccess(w http.ResponseWriter, page successPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := successTemplate.Execute(w, page); err != nil {
		logrus.WithError(err).Warn("Failed to render success page")
	}
}

func renderError(w http.ResponseWriter, status int, errMsg, suggestion string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := errorTemplate.Execute(w, errorPage{Error: errMsg, Suggestion: suggestion}); err != nil {
		logrus.WithError(err).Warn("Failed to render error page")
	}
}
