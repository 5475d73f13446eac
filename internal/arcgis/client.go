// Package arcgis queries an ArcGIS REST feature layer for the parcels inside
// a bounding box.
package arcgis

import (
	"context"

	"github.com/dusk-indust/herrenlos/internal/parcel"
	"github.com/dusk-indust/herrenlos/internal/query"
)

// Client issues one feature query and returns its raw features. Failures are
// returned as *Error.
type Client interface {
	Query(ctx context.Context, req query.Request) ([]parcel.RawFeature, error)
}

// Cache stores raw response bodies keyed by query.Request.CacheKey. Expiry is
// the implementation's concern.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req query.Request) ([]parcel.RawFeature, error)

// Query calls f.
func (f ClientFunc) Query(ctx context.Context, req query.Request) ([]parcel.RawFeature, error) {
	return f(ctx, req)
}
