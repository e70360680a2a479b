package email

import (
	"bytes"
	"html/template"
	"strings"
)

// OrderMail is the data rendered into order emails. Amounts are preformatted
// with two decimals.
type OrderMail struct {
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Notes         string
	Items         []ItemRow
	Subtotal      string
	Discount      string // empty when no discount applies
	CouponCode    string
	FinalTotal    string
	WhatsAppLink  string
}

// ItemRow is one grouped line of the items table.
type ItemRow struct {
	Description string
	Quantity    int
	UnitPrice   string
	Total       string
}

const layoutHead = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">`

const itemsTable = `{{define "items"}}
		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Unit price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Total</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Items}}
				<tr>
					<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.Description}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{.UnitPrice}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{.Total}}</td>
				</tr>
			{{- end}}
			</tbody>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
		{{- if .Discount}}
			<p style="margin: 0; color: #666;">Subtotal: {{.Subtotal}}</p>
			<p style="margin: 0; color: #dc2626;">Discount{{if .CouponCode}} ({{.CouponCode}}){{end}}: -{{.Discount}}</p>
		{{- end}}
			<span style="font-size: 14px; color: #666;">Total to pay</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">{{.FinalTotal}}</span>
		</div>
{{end}}`

var confirmationTmpl = template.Must(template.New("confirmation").Parse(itemsTable + layoutHead + `
	<div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thank you for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Hi {{.CustomerName}}, we received your order and will start preparing it once payment is confirmed.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{.OrderNumber}}</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">Your order</h2>
		{{template "items" .}}

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This email was sent automatically. Reply to it if you have any questions.
		</p>
	</div>
</body>
</html>`))

var noticeTmpl = template.Must(template.New("notice").Parse(itemsTable + layoutHead + `
	<div style="background: #f8fafc; border-radius: 8px; padding: 20px; margin-bottom: 25px;">
		<h1 style="margin: 0 0 15px 0; font-size: 22px;">New order #{{.OrderNumber}}</h1>
		<p style="margin: 0;">
			<strong>Name:</strong> {{.CustomerName}}<br>
			<strong>Email:</strong> <a href="mailto:{{.CustomerEmail}}">{{.CustomerEmail}}</a><br>
			<strong>Phone:</strong> <a href="tel:{{.CustomerPhone}}">{{.CustomerPhone}}</a>
		</p>
		{{- if .Notes}}
		<p style="margin-top: 15px;"><strong>Notes:</strong><br>{{.Notes}}</p>
		{{- end}}
	</div>

	<h2 style="font-size: 18px;">Items</h2>
	{{template "items" .}}
	{{- if .WhatsAppLink}}

	<p style="margin-top: 25px;">
		<a href="{{.WhatsAppLink}}" style="background: #25d366; color: white; padding: 12px 24px; text-decoration: none; border-radius: 8px; font-weight: bold; display: inline-block;">Message customer on WhatsApp</a>
	</p>
	{{- end}}
</body>
</html>`))

// BuildOrderConfirmationBody renders the buyer's confirmation email.
func BuildOrderConfirmationBody(order OrderMail) (string, error) {
	return render(confirmationTmpl, order)
}

// BuildNewOrderNoticeBody renders the shop's new-order email.
func BuildNewOrderNoticeBody(order OrderMail) (string, error) {
	return render(noticeTmpl, order)
}

func render(t *template.Template, order OrderMail) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, order); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WhatsAppLink builds a wa.me link for a local phone number. A leading trunk
// zero is replaced by countryCode.
func WhatsAppLink(phone, countryCode string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return ""
	}
	if strings.HasPrefix(number, "0") {
		number = countryCode + number[1:]
	}
	return "https://wa.me/" + number
}
