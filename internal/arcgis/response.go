package arcgis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// queryResponse is the subset of an ArcGIS REST query response we read.
// Features is a pointer so that a missing key can be told apart from an
// empty array.
type queryResponse struct {
	Features *[]feature    `json:"features"`
	Error    *serviceError `json:"error,omitempty"`
}

type feature struct {
	Attributes parcel.RawFeature `json:"attributes"`
}

// serviceError is the envelope ArcGIS returns with HTTP 200 when a query is
// rejected.
type serviceError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// decodeFeatures parses a query response body. Numbers are kept as
// json.Number so parcel identifiers survive unchanged.
func decodeFeatures(body []byte) ([]parcel.RawFeature, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var resp queryResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, parseError("decode response: "+err.Error(), err)
	}
	if resp.Error != nil {
		msg := fmt.Sprintf("service error %d: %s", resp.Error.Code, resp.Error.Message)
		if len(resp.Error.Details) > 0 {
			msg += " (" + strings.Join(resp.Error.Details, "; ") + ")"
		}
		return nil, parseError(msg, nil)
	}
	if resp.Features == nil {
		return nil, parseError("response has no features array", nil)
	}

	out := make([]parcel.RawFeature, 0, len(*resp.Features))
	for i, f := range *resp.Features {
		if f.Attributes == nil {
			return nil, parseError(fmt.Sprintf("feature %d has no attributes", i), nil)
		}
		out = append(out, f.Attributes)
	}
	return out, nil
}
