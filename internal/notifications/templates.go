package notifications

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/angelmondragon/kiggyshop-backend/pkg/mailer"
	"github.com/angelmondragon/kiggyshop-backend/pkg/money"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/payloads"
)

const (
	templateConfirmation = "order_confirmation"
	templateShipped      = "order_shipped"

	confirmationSubject = "Your KiggyShop order"
	shippedSubject      = "Your KiggyShop order has shipped"
)

type emailLine struct {
	Title     string
	Quantity  int
	UnitPrice string
	LineTotal string
}

type confirmationView struct {
	Name     string
	OrderID  string
	Lines    []emailLine
	Shipping string
	Total    string
	Address  string
}

type shippedView struct {
	Name           string
	OrderID        string
	TrackingNumber string
}

var (
	confirmationText = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(`Thank you {{.Name}}!

We received your order {{.OrderID}}.
{{range .Lines}}
{{.Quantity}} x {{.Title}} @ {{.UnitPrice}} = {{.LineTotal}}{{end}}

Shipping: {{.Shipping}}
Total: {{.Total}}
{{if .Address}}
Shipping to: {{.Address}}
{{end}}`))

	confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(`<h1>Thank you {{.Name}}!</h1>
<p>We received your order <strong>{{.OrderID}}</strong>.</p>
<table>
<tr><th>Item</th><th>Quantity</th><th>Price</th><th>Total</th></tr>
{{range .Lines}}<tr><td>{{.Title}}</td><td>{{.Quantity}}</td><td>{{.UnitPrice}}</td><td>{{.LineTotal}}</td></tr>
{{end}}<tr><td colspan="3">Shipping</td><td>{{.Shipping}}</td></tr>
<tr><td colspan="3"><strong>Total</strong></td><td><strong>{{.Total}}</strong></td></tr>
</table>
{{if .Address}}<p>Shipping to: {{.Address}}</p>{{end}}`))

	shippedText = texttemplate.Must(texttemplate.New("shipped.txt").Parse(`Hi, {{.Name}}! Your order has shipped!

Order number: {{.OrderID}}
USPS tracking number: {{.TrackingNumber}}
`))

	shippedHTML = htmltemplate.Must(htmltemplate.New("shipped.html").Parse(`<h1>Hi, {{.Name}}! Your order has shipped!</h1>
<p>Order number: <strong>{{.OrderID}}</strong></p>
<p>USPS tracking number: <strong>{{.TrackingNumber}}</strong></p>`))
)

func renderConfirmation(event payloads.OrderPaidEvent) (mailer.Message, error) {
	view := confirmationView{
		Name:     displayName(event.Name),
		OrderID:  event.OrderID.String(),
		Lines:    make([]emailLine, 0, len(event.Lines)),
		Shipping: money.Format(event.ShippingCents, event.Currency),
		Total:    money.Format(event.TotalCents, event.Currency),
		Address:  event.Address,
	}
	for _, line := range event.Lines {
		view.Lines = append(view.Lines, emailLine{
			Title:     line.Title,
			Quantity:  line.Quantity,
			UnitPrice: money.Format(line.UnitPriceCents, event.Currency),
			LineTotal: money.Format(line.LineTotalCents, event.Currency),
		})
	}

	var text, html bytes.Buffer
	if err := confirmationText.Execute(&text, view); err != nil {
		return mailer.Message{}, err
	}
	if err := confirmationHTML.Execute(&html, view); err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{
		ToName:   event.Name,
		ToEmail:  event.Email,
		Subject:  confirmationSubject,
		Text:     text.String(),
		HTML:     html.String(),
		Category: templateConfirmation,
	}, nil
}

func renderShipped(event payloads.OrderShippedEvent) (mailer.Message, error) {
	view := shippedView{
		Name:           displayName(event.Name),
		OrderID:        event.OrderID.String(),
		TrackingNumber: event.TrackingNumber,
	}
	var text, html bytes.Buffer
	if err := shippedText.Execute(&text, view); err != nil {
		return mailer.Message{}, err
	}
	if err := shippedHTML.Execute(&html, view); err != nil {
		return mailer.Message{}, err
	}
	return mailer.Message{
		ToName:   event.Name,
		ToEmail:  event.Email,
		Subject:  shippedSubject,
		Text:     text.String(),
		HTML:     html.String(),
		Category: templateShipped,
	}, nil
}

func displayName(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return "there"
}
