package model

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Coordinates is a resolved geographic position. Immutable once produced by
// the resolver.
type Coordinates struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DisplayName string  `json:"display_name,omitempty"`
}

// CanonicalPoint renders the coordinate pair in the canonical wire form
// POINT(<lng> <lat>). Longitude comes first; consumers parsing this text must
// use the same axis order.
func (c Coordinates) CanonicalPoint() string {
	return fmt.Sprintf("POINT(%v %v)", c.Lng, c.Lat)
}

// ParsePoint parses the canonical POINT(<lng> <lat>) text form back into
// Coordinates. The display name is not part of the wire form and is left
// empty.
func ParsePoint(s string) (Coordinates, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return Coordinates{}, eris.Wrapf(err, "model: parse point %q", s)
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return Coordinates{}, eris.Errorf("model: %q is not a point", s)
	}
	return Coordinates{Lat: p.Y(), Lng: p.X()}, nil
}
