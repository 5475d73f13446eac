// Package query turns a municipality extent into a feature-service query.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/dusk-indust/herrenlos/internal/municipality"
)

// DefaultSpatialReference is CH1903+/LV95.
const DefaultSpatialReference = 2056

// Request describes one spatial feature query. It carries everything needed
// to issue the request but performs no I/O.
type Request struct {
	Municipality string
	Endpoint     string
	Params       url.Values
}

// URL returns the full GET URL. url.Values encodes keys in sorted order, so
// the result is stable for equal requests.
func (r Request) URL() string {
	sep := "?"
	if strings.Contains(r.Endpoint, "?") {
		sep = "&"
	}
	return r.Endpoint + sep + r.Params.Encode()
}

// CacheKey identifies the response of this request.
func (r Request) CacheKey() string {
	return "herrenlos:query:" + r.URL()
}

// Builder builds requests against a single layer endpoint.
type Builder struct {
	Endpoint         string
	SpatialReference int
}

// NewBuilder returns a Builder for endpoint. A non-positive srid selects
// DefaultSpatialReference.
func NewBuilder(endpoint string, srid int) Builder {
	if srid <= 0 {
		srid = DefaultSpatialReference
	}
	return Builder{Endpoint: endpoint, SpatialReference: srid}
}

// Build returns the envelope-intersects query for m. The four bounds are
// written with the shortest representation that round-trips, so the values
// reach the service unchanged.
func (b Builder) Build(m municipality.Municipality) Request {
	srid := b.SpatialReference
	if srid <= 0 {
		srid = DefaultSpatialReference
	}
	sr := strconv.Itoa(srid)

	params := url.Values{}
	params.Set("f", "json")
	params.Set("where", "1=1")
	params.Set("geometryType", "esriGeometryEnvelope")
	params.Set("geometry", Envelope(m.BBox))
	params.Set("inSR", sr)
	params.Set("outSR", sr)
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("outFields", "*")
	params.Set("returnGeometry", "false")

	return Request{
		Municipality: m.Name,
		Endpoint:     b.Endpoint,
		Params:       params,
	}
}

// Envelope formats a bbox as "xmin,ymin,xmax,ymax".
func Envelope(b municipality.BBox) string {
	return strings.Join([]string{
		formatCoord(b.XMin),
		formatCoord(b.YMin),
		formatCoord(b.XMax),
		formatCoord(b.YMax),
	}, ",")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
