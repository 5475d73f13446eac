package classify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dusk-indust/herrenlos/internal/municipality"
	"github.com/dusk-indust/herrenlos/internal/parcel"
)

var aarau = municipality.Municipality{
	Name:    "Aarau",
	BBox:    municipality.BBox{XMin: 2635000, YMin: 1250000, XMax: 2637000, YMax: 1252000},
	Contact: "info@aarau.ch",
}

func TestIsCandidate(t *testing.T) {
	c := New(DefaultSchema())

	tests := []struct {
		name    string
		feature parcel.RawFeature
		want    bool
	}{
		{"absent", parcel.RawFeature{"NUMMER": "1"}, true},
		{"nil feature", nil, true},
		{"json null", parcel.RawFeature{"EGRID": nil}, true},
		{"empty string", parcel.RawFeature{"EGRID": ""}, true},
		{"whitespace", parcel.RawFeature{"EGRID": "  \t"}, true},
		{"null marker", parcel.RawFeature{"EGRID": "<Null>"}, true},
		{"null marker other case", parcel.RawFeature{"EGRID": "null"}, true},
		{"owner present", parcel.RawFeature{"EGRID": "CH123456789012"}, false},
		{"numeric owner", parcel.RawFeature{"EGRID": 42.0}, false},
		{"zero is a value", parcel.RawFeature{"EGRID": 0.0}, false},
		{"other field empty", parcel.RawFeature{"EGRID": "CH1", "NUMMER": ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, c.IsCandidate(tt.feature))
			})
		})
	}
}

func TestIsCandidate_ConfiguredOwnerField(t *testing.T) {
	schema := DefaultSchema()
	schema.OwnerField = "EIGENTUEMER_ID"
	c := New(schema, WithNullMarkers("-"))

	assert.True(t, c.IsCandidate(parcel.RawFeature{"EGRID": "CH1"}))
	assert.True(t, c.IsCandidate(parcel.RawFeature{"EIGENTUEMER_ID": "-"}))
	assert.False(t, c.IsCandidate(parcel.RawFeature{"EIGENTUEMER_ID": "<Null>"}))
	assert.False(t, c.IsCandidate(parcel.RawFeature{"EIGENTUEMER_ID": "42"}))
}

func TestRecord(t *testing.T) {
	c := New(DefaultSchema(), WithLinkTemplate("https://geo.example.ch/parzelle/{id}"))

	rec := c.Record(parcel.RawFeature{"NUMMER": "1234", "FLAECHE": 560.0, "EGRID": ""}, aarau)

	assert.Equal(t, parcel.CandidateRecord{
		ParcelID:     "1234",
		Municipality: "Aarau",
		AreaM2:       560,
		Status:       parcel.StatusOwnerlessCandidate,
		Contact:      "info@aarau.ch",
		Link:         "https://geo.example.ch/parzelle/1234",
	}, rec)
}

func TestRecord_AttributeTypes(t *testing.T) {
	c := New(DefaultSchema())

	tests := []struct {
		name     string
		feature  parcel.RawFeature
		wantID   string
		wantArea float64
	}{
		{"json numbers", parcel.RawFeature{"NUMMER": json.Number("987"), "FLAECHE": json.Number("12.5")}, "987", 12.5},
		{"floats", parcel.RawFeature{"NUMMER": 55.0, "FLAECHE": 1e3}, "55", 1000},
		{"area as string", parcel.RawFeature{"NUMMER": " A-7 ", "FLAECHE": " 88.25 "}, "A-7", 88.25},
		{"bad area", parcel.RawFeature{"NUMMER": "1", "FLAECHE": "n/a"}, "1", 0},
		{"missing", parcel.RawFeature{}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.Record(tt.feature, aarau)
			assert.Equal(t, tt.wantID, rec.ParcelID)
			assert.Equal(t, tt.wantArea, rec.AreaM2)
			assert.Empty(t, rec.Link)
		})
	}
}

func TestClassify_KeepsFeatureOrder(t *testing.T) {
	c := New(DefaultSchema())
	features := []parcel.RawFeature{
		{"NUMMER": "3", "EGRID": ""},
		{"NUMMER": "1", "EGRID": "CH1"},
		{"NUMMER": "2"},
		{"NUMMER": "9", "EGRID": "<Null>"},
	}

	records := c.Classify(features, aarau)

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ParcelID)
	}
	assert.Equal(t, []string{"3", "2", "9"}, ids)
	assert.Nil(t, c.Classify(nil, aarau))
}

func TestLink_EscapesID(t *testing.T) {
	c := New(DefaultSchema(), WithLinkTemplate("https://geo.example.ch/p/{id}"))
	rec := c.Record(parcel.RawFeature{"NUMMER": "12 a/b"}, aarau)
	assert.Equal(t, "https://geo.example.ch/p/12%20a%2Fb", rec.Link)
}
