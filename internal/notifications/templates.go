package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	textTemplate "text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/seaside-charters/api/internal/domain"
)

const displayTimeLayout = "Mon, 02 Jan 2006 15:04 MST"

// moneyLine is one row of the rendered price breakdown.
type moneyLine struct {
	Label  string
	Amount string
}

// emailView is the data rendered into every booking email.
type emailView struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	YachtName     string
	YachtLength   string
	CityName      string
	Reference     string
	BookingType   string
	Start         string
	End           string
	Guests        int
	Notes         string
	Lines         []moneyLine
	Total         string
	Inquiry       bool
}

const confirmationHTML = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #0b2540;">
<h2>Your charter aboard {{.YachtName}} is confirmed</h2>
<p>Hi {{.CustomerName}},</p>
<p>Thank you for booking with us. Your payment has been received and your charter is confirmed.</p>
{{template "details" .}}
<p>Booking reference: <strong>{{.Reference}}</strong></p>
<p>Our team will be in touch before your charter with boarding details.</p>
</body></html>`

const inquiryHTML = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #0b2540;">
<h2>We received your enquiry for {{.YachtName}}</h2>
<p>Hi {{.CustomerName}},</p>
<p>Thanks for your enquiry. A charter specialist will confirm availability and get back to you shortly. No payment has been taken.</p>
{{template "details" .}}
</body></html>`

const alertHTML = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif;">
<h2>{{if .Inquiry}}New enquiry{{else}}New confirmed booking{{end}}: {{.YachtName}}</h2>
<p>Reference: {{.Reference}}</p>
<p>Customer: {{.CustomerName}} &lt;{{.CustomerEmail}}&gt;{{if .CustomerPhone}}, {{.CustomerPhone}}{{end}}</p>
{{template "details" .}}
</body></html>`

const detailsHTML = `{{define "details"}}<table cellpadding="4" style="border-collapse: collapse;">
<tr><td>Yacht</td><td>{{.YachtName}} ({{.YachtLength}}ft), {{.CityName}}</td></tr>
<tr><td>Charter</td><td>{{.BookingType}}</td></tr>
<tr><td>Start</td><td>{{.Start}}</td></tr>
<tr><td>End</td><td>{{.End}}</td></tr>
<tr><td>Guests</td><td>{{.Guests}}</td></tr>
{{if .Notes}}<tr><td>Notes</td><td>{{.Notes}}</td></tr>{{end}}
{{range .Lines}}<tr><td>{{.Label}}</td><td align="right">{{.Amount}}</td></tr>
{{end}}<tr><td><strong>Total</strong></td><td align="right"><strong>{{.Total}}</strong></td></tr>
</table>{{end}}`

const plainText = `{{.YachtName}} ({{.YachtLength}}ft), {{.CityName}}
{{.BookingType}}: {{.Start}} to {{.End}}, {{.Guests}} guests
Reference: {{.Reference}}
{{range .Lines}}{{.Label}}: {{.Amount}}
{{end}}Total: {{.Total}}
`

var (
	confirmationTemplate = template.Must(template.Must(template.New("confirmation").Parse(confirmationHTML)).Parse(detailsHTML))
	inquiryTemplate      = template.Must(template.Must(template.New("inquiry").Parse(inquiryHTML)).Parse(detailsHTML))
	alertTemplate        = template.Must(template.Must(template.New("alert").Parse(alertHTML)).Parse(detailsHTML))
	plainTemplate        = textTemplate.Must(textTemplate.New("plain").Parse(plainText))
)

// renderer turns notifications into sanitised views.
type renderer struct {
	policy  *bluemonday.Policy
	printer *message.Printer
}

func newRenderer() renderer {
	return renderer{
		policy:  bluemonday.StrictPolicy(),
		printer: message.NewPrinter(language.AmericanEnglish),
	}
}

// clean strips markup from customer-controlled text.
func (r renderer) clean(value string) string {
	return strings.TrimSpace(r.policy.Sanitize(value))
}

func (r renderer) money(code string, amount float64) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return r.printer.Sprintf("%.2f %s", amount, strings.ToUpper(code))
	}
	return r.printer.Sprint(currency.Symbol(unit.Amount(amount)))
}

// view builds the email data. Base price and registration fee are always shown as separate lines.
func (r renderer) view(n domain.BookingNotification) emailView {
	code := n.Currency()
	breakdown := n.Breakdown

	lines := []moneyLine{{Label: "Base price", Amount: r.money(code, breakdown.BasePrice)}}
	if breakdown.YatrFee > 0 {
		lines = append(lines, moneyLine{Label: "Yacht registration fee", Amount: r.money(code, breakdown.YatrFee)})
	}
	for _, tax := range breakdown.TaxBreakdown {
		lines = append(lines, moneyLine{Label: tax.Name, Amount: r.money(code, tax.Amount)})
	}
	for _, svc := range breakdown.AdditionalServices {
		label := svc.Name
		if svc.Quantity > 1 {
			label = fmt.Sprintf("%s x%d", svc.Name, svc.Quantity)
		}
		lines = append(lines, moneyLine{Label: label, Amount: r.money(code, svc.Total)})
	}
	if breakdown.DeliveryCharge > 0 {
		lines = append(lines, moneyLine{Label: "Delivery", Amount: r.money(code, breakdown.DeliveryCharge)})
	}
	if breakdown.ProcessingFee > 0 {
		lines = append(lines, moneyLine{Label: "Card processing fee", Amount: r.money(code, breakdown.ProcessingFee)})
	}

	reference := n.Booking.OrderID
	if reference == "" {
		reference = n.Booking.ID
	}
	var notes string
	if raw, ok := n.Booking.StaticDetails["notes"].(string); ok {
		notes = r.clean(raw)
	}

	return emailView{
		CustomerName:  r.clean(n.Customer.Name),
		CustomerEmail: r.clean(n.Customer.Email),
		CustomerPhone: r.clean(n.Customer.Phone),
		YachtName:     n.Yacht.Name,
		YachtLength:   r.printer.Sprintf("%v", n.Yacht.Length),
		CityName:      n.City.Name,
		Reference:     reference,
		BookingType:   bookingTypeLabel(n.Booking.BookingType),
		Start:         displayTime(n.LocalStartDate, n.LocalStartTime, n.Booking.Start),
		End:           displayTime(n.LocalEndDate, n.LocalEndTime, n.Booking.End),
		Guests:        n.Booking.Guests,
		Notes:         notes,
		Lines:         lines,
		Total:         r.money(code, breakdown.TotalPrice),
		Inquiry:       n.Booking.Inquiry,
	}
}

func displayTime(localDate, localTime string, fallback time.Time) string {
	if localDate != "" {
		return strings.TrimSpace(localDate + " " + localTime)
	}
	if fallback.IsZero() {
		return ""
	}
	return fallback.UTC().Format(displayTimeLayout)
}

func bookingTypeLabel(bookingType domain.BookingType) string {
	label := "Single-day charter"
	if bookingType.Kind() == domain.BookingTypeMultiDay {
		label = "Multi-day charter"
	}
	if bookingType.IsInquiry() {
		label += " enquiry"
	}
	return label
}

type renderedEmail struct {
	HTML  string
	Plain string
}

func render(tmpl *template.Template, view emailView) (renderedEmail, error) {
	var html, plain bytes.Buffer
	if err := tmpl.Execute(&html, view); err != nil {
		return renderedEmail{}, fmt.Errorf("notifications: render %s: %w", tmpl.Name(), err)
	}
	if err := plainTemplate.Execute(&plain, view); err != nil {
		return renderedEmail{}, fmt.Errorf("notifications: render plain text: %w", err)
	}
	return renderedEmail{HTML: html.String(), Plain: plain.String()}, nil
}
