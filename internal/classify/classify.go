// Package classify decides which features are ownerless candidates and turns
// them into records.
package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/dusk-indust/herrenlos/internal/municipality"
	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// DefaultNullMarkers are the placeholder strings the cadastral services use
// for an empty attribute.
var DefaultNullMarkers = []string{"<Null>", "NULL"}

// Schema names the attributes read from a feature.
type Schema struct {
	IDField    string
	AreaField  string
	OwnerField string
}

// DefaultSchema matches the Aargau cadastral layer.
func DefaultSchema() Schema {
	return Schema{IDField: "NUMMER", AreaField: "FLAECHE", OwnerField: "EGRID"}
}

// Classifier is safe for concurrent use once constructed.
type Classifier struct {
	schema       Schema
	nullMarkers  []string
	linkTemplate string
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithNullMarkers replaces DefaultNullMarkers. Markers compare
// case-insensitively after trimming.
func WithNullMarkers(markers ...string) Option {
	return func(c *Classifier) {
		c.nullMarkers = append([]string(nil), markers...)
	}
}

// WithLinkTemplate sets a URL template for CandidateRecord.Link. The
// placeholder {id} is replaced with the escaped parcel id.
func WithLinkTemplate(tmpl string) Option {
	return func(c *Classifier) {
		c.linkTemplate = tmpl
	}
}

// New returns a Classifier for schema.
func New(schema Schema, opts ...Option) *Classifier {
	c := &Classifier{
		schema:      schema,
		nullMarkers: DefaultNullMarkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schema returns the attribute names in use.
func (c *Classifier) Schema() Schema { return c.schema }

// IsCandidate reports whether the owner attribute of f is absent, null,
// blank or a null marker. Any other value, including non-string values,
// counts as an owner.
func (c *Classifier) IsCandidate(f parcel.RawFeature) bool {
	v, ok := f.Lookup(c.schema.OwnerField)
	if !ok || v == nil {
		return true
	}
	s, isString := v.(string)
	if !isString {
		return false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, marker := range c.nullMarkers {
		if strings.EqualFold(s, strings.TrimSpace(marker)) {
			return true
		}
	}
	return false
}

// Record builds the candidate record for f found in m. It does not check
// IsCandidate.
func (c *Classifier) Record(f parcel.RawFeature, m municipality.Municipality) parcel.CandidateRecord {
	id := c.attrString(f, c.schema.IDField)
	return parcel.CandidateRecord{
		ParcelID:     id,
		Municipality: m.Name,
		AreaM2:       c.attrFloat(f, c.schema.AreaField),
		Status:       parcel.StatusOwnerlessCandidate,
		Contact:      m.Contact,
		Link:         c.link(id),
	}
}

// Classify returns the records for every candidate in features, keeping
// feature order.
func (c *Classifier) Classify(features []parcel.RawFeature, m municipality.Municipality) []parcel.CandidateRecord {
	var records []parcel.CandidateRecord
	for _, f := range features {
		if c.IsCandidate(f) {
			records = append(records, c.Record(f, m))
		}
	}
	return records
}

func (c *Classifier) link(id string) string {
	if c.linkTemplate == "" || id == "" {
		return ""
	}
	return strings.ReplaceAll(c.linkTemplate, "{id}", url.PathEscape(id))
}

func (c *Classifier) attrString(f parcel.RawFeature, field string) string {
	v, ok := f.Lookup(field)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// attrFloat returns 0 for absent or unparsable areas.
func (c *Classifier) attrFloat(f parcel.RawFeature, field string) float64 {
	v, ok := f.Lookup(field)
	if !ok || v == nil {
		return 0
	}
	var (
		n   float64
		err error
	)
	switch t := v.(type) {
	case float64:
		n = t
	case json.Number:
		n, err = t.Float64()
	case string:
		n, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	default:
		return 0
	}
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}
