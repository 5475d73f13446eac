package report

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// Requester is the person sending the inquiries.
type Requester struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address,omitempty"`
	Email   string `yaml:"email" json:"email"`
}

const letterText = `Sehr geehrte Damen und Herren

Bei der Auswertung öffentlich zugänglicher Katasterdaten bin ich auf die Parzelle {{.Record.ParcelID}} in {{.Record.Municipality}} gestossen. Für dieses Grundstück ist kein Eigentümer (EGRID) erfasst; es könnte sich um ein herrenloses Grundstück handeln.

Können Sie mir bestätigen, ob für die Parzelle {{.Record.ParcelID}} ein Eigentümer im Grundbuch eingetragen ist?

Freundliche Grüsse
{{- with .Requester.Name}}
{{.}}{{end}}
{{- with .Requester.Address}}
{{.}}{{end}}
{{- with .Requester.Email}}
{{.}}{{end}}
`

var letterTemplate = template.Must(template.New("letter").Parse(letterText))

// Letter is the inquiry for one candidate record.
type Letter struct {
	Record  parcel.CandidateRecord
	Subject string
	Body    string
	Mailto  string
}

// Subject returns the mail subject for a parcel.
func Subject(rec parcel.CandidateRecord) string {
	return fmt.Sprintf("Anfrage zu Parzelle %s (%s)", rec.ParcelID, rec.Municipality)
}

// ComposeLetter renders the inquiry for rec.
func ComposeLetter(req Requester, rec parcel.CandidateRecord) (Letter, error) {
	var b strings.Builder
	data := struct {
		Requester Requester
		Record    parcel.CandidateRecord
	}{req, rec}
	if err := letterTemplate.Execute(&b, data); err != nil {
		return Letter{}, fmt.Errorf("report: render letter for %s: %w", rec.ParcelID, err)
	}

	subject := Subject(rec)
	body := b.String()
	return Letter{
		Record:  rec,
		Subject: subject,
		Body:    body,
		Mailto:  MailtoLink(rec.Contact, subject, body),
	}, nil
}

// Letters renders one letter per record, in record order.
func Letters(req Requester, records []parcel.CandidateRecord) ([]Letter, error) {
	out := make([]Letter, 0, len(records))
	for _, rec := range records {
		l, err := ComposeLetter(req, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
