// Package parcel holds the data model shared by every stage of a search run:
// raw features from the cadastral service, the candidate records derived from
// them, and the per-municipality outcomes folded into a Result.
package parcel

// StatusOwnerlessCandidate is the only status a CandidateRecord carries.
const StatusOwnerlessCandidate = "ownerless-candidate"

// RawFeature is the attribute mapping of one parcel as returned by the
// feature service. Field names depend on the data source and are resolved
// through configuration, never hardcoded.
type RawFeature map[string]any

// Lookup returns the attribute value and whether the key was present.
func (f RawFeature) Lookup(field string) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f[field]
	return v, ok
}

// CandidateRecord is a parcel that looks ownerless. Records are values and
// are never modified after classification.
type CandidateRecord struct {
	ParcelID     string  `json:"parcelId"`
	Municipality string  `json:"municipality"`
	AreaM2       float64 `json:"areaM2"`
	Status       string  `json:"status"`
	Contact      string  `json:"contact"`

	// Link points at the parcel in the public geoportal. Optional.
	Link string `json:"link,omitempty"`
}

// FailureKind names a per-municipality failure class.
type FailureKind string

const (
	// KindNetwork covers transport errors, timeouts and non-200 responses.
	KindNetwork FailureKind = "NetworkError"

	// KindResponseParse covers bodies that are not the expected JSON shape.
	KindResponseParse FailureKind = "ResponseParseError"
)

// Failure describes why a municipality produced no records.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Outcome is the result of searching one municipality. A run produces
// exactly one Outcome per configured municipality, in configuration order.
type Outcome struct {
	Municipality   string   `json:"municipality"`
	FeatureCount   int      `json:"featureCount"`
	CandidateCount int      `json:"candidateCount"`
	Failure        *Failure `json:"failure,omitempty"`
}

// Failed reports whether the municipality could not be searched.
func (o Outcome) Failed() bool {
	return o.Failure != nil
}

// Status returns "failed" or "ok" for tabular output.
func (o Outcome) Status() string {
	if o.Failed() {
		return "failed"
	}
	return "ok"
}
