package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// DocumentOptions controls the header of the contact document.
type DocumentOptions struct {
	Title       string
	GeneratedAt time.Time
	Requester   Requester
	MinAreaM2   float64
}

// DefaultTitle heads the contact document.
const DefaultTitle = "Herrenlose Grundstücke – Aargau"

// WriteContactDocument writes the header followed by one block per record:
// parcel, municipality, area, contact, the inquiry letter and its mailto
// link. Failed municipalities are listed at the end.
func WriteContactDocument(w io.Writer, opts DocumentOptions, result parcel.Result) error {
	letters, err := Letters(opts.Requester, result.Records())
	if err != nil {
		return err
	}

	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (erstellt am %s)\n", title, opts.GeneratedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Name: %s\n", opts.Requester.Name)
	fmt.Fprintf(&b, "E-Mail: %s\n\n", opts.Requester.Email)
	fmt.Fprintf(&b, "Filter: Fläche >= %s m², Eigentümer unbekannt\n", FormatArea(opts.MinAreaM2))
	fmt.Fprintf(&b, "Treffer: %d\n", len(letters))

	for _, l := range letters {
		rec := l.Record
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", 72))
		b.WriteString("\n")
		fmt.Fprintf(&b, "Parzelle %s – %s – %s m²\n", rec.ParcelID, rec.Municipality, FormatArea(rec.AreaM2))
		b.WriteString("Verdacht: herrenlos\n")
		if rec.Link != "" {
			fmt.Fprintf(&b, "Geoportal: %s\n", rec.Link)
		}
		fmt.Fprintf(&b, "Kontakt: %s\n\n", rec.Contact)
		b.WriteString(l.Body)
		fmt.Fprintf(&b, "\nE-Mail-Link: %s\n", l.Mailto)
	}

	if failed := result.Failures(); len(failed) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("=", 72))
		b.WriteString("\nNicht durchsuchte Gemeinden:\n")
		for _, o := range failed {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", o.Municipality, o.Failure.Message, o.Failure.Kind)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("report: write contact document: %w", err)
	}
	return nil
}
