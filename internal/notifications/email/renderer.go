package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
}

// AlertData is the content of one surf+flight alert.
type AlertData struct {
	RuleName   string
	SpotName   string
	Origin     string
	Dest       string
	DepartDate string
	ReturnDate string
	TripDays   int
	GoodDays   []string
	Price      float64
	Currency   string
	Outlook    string
	Thresholds string
	FlightLink string
	HotelLink  string
}

type templateData struct {
	AlertData
	Subject string
}

// Renderer renders alert emails from embedded html/template files.
type Renderer struct {
	html *template.Template
}

// NewRenderer parses the embedded templates and returns a Renderer.
// Returns an error if any template fails to parse.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("alert").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "templates/base.html", "templates/alert.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse templates: %w", err)
	}
	return &Renderer{html: tmpl}, nil
}

// Subject formats the subject line, for example
// "Surf+Flight (trend): Uluwatu + LIS→DPS ≈ USD 640".
func Subject(d AlertData) string {
	return fmt.Sprintf("Surf+Flight (%s): %s + %s→%s ≈ %s %.0f",
		d.Outlook, d.SpotName, d.Origin, d.Dest, d.Currency, d.Price)
}

// Render renders the alert into a subject and HTML body.
func (r *Renderer) Render(d AlertData) (*RenderedEmail, error) {
	data := templateData{AlertData: d, Subject: Subject(d)}

	var buf bytes.Buffer
	if err := r.html.ExecuteTemplate(&buf, "base", data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render alert: %w", err)
	}
	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: buf.String(),
	}, nil
}
