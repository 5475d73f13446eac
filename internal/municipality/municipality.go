// Package municipality loads the list of municipalities to search. Each row
// of the tabular source is parsed on its own: a broken row is skipped and
// reported, and only a source without a single usable row is fatal.
package municipality

import (
	_ "embed"
	"fmt"
	"math"
)

//go:embed defaults.csv
var defaultCSV []byte

// BBox is an axis-aligned extent in the service's projected coordinate
// reference system.
type BBox struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Validate checks coordinate ordering. Nothing beyond ordering is checked.
func (b BBox) Validate() error {
	for _, v := range []float64{b.XMin, b.YMin, b.XMax, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bbox contains a non-finite coordinate")
		}
	}
	if !(b.XMin < b.XMax) {
		return fmt.Errorf("xmin %v must be less than xmax %v", b.XMin, b.XMax)
	}
	if !(b.YMin < b.YMax) {
		return fmt.Errorf("ymin %v must be less than ymax %v", b.YMin, b.YMax)
	}
	return nil
}

// Municipality is one search unit.
type Municipality struct {
	Name    string `json:"name"`
	BBox    BBox   `json:"bbox"`
	Contact string `json:"contact"`
}
