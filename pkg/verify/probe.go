package verify

import (
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/sample"
)

// Point is a pixel position inside a descriptor.
type Point struct {
	X int
	Y int
}

// Grid returns probe points every step pixels across a width×height
// descriptor, nearest to the centre first. Ties are broken by ascending x,
// then ascending y.
//
// At most limit points are returned: the step is doubled until the grid
// fits. A limit below 1 means constants.MaxProbes.
func Grid(d sample.Descriptor, step, limit int) []Point {
	if d.Degenerate() || step <= 0 {
		return nil
	}
	if limit < 1 {
		limit = constants.MaxProbes
	}
	for step <= math.MaxInt/2 && float64(cells(d.Width, step))*float64(cells(d.Height, step)) > float64(limit) {
		step *= 2
	}

	cols, rows := cells(d.Width, step), cells(d.Height, step)
	points := make([]Point, 0, cols*rows)
	for i := 0; i < cols; i++ {
		for j := 0; j < rows; j++ {
			points = append(points, Point{X: i * step, Y: j * step})
		}
	}

	cx, cy := float64(d.Width)/2, float64(d.Height)/2
	dist := func(p Point) float64 {
		return math.Hypot(float64(p.X)-cx, float64(p.Y)-cy)
	}
	slices.SortStableFunc(points, func(a, b Point) int {
		da, db := dist(a), dist(b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		case a.X != b.X:
			return a.X - b.X
		default:
			return a.Y - b.Y
		}
	})
	return points
}

// cells is the number of grid lines every step pixels across n pixels.
func cells(n, step int) int {
	return n/step + min(n%step, 1)
}

// Query builds WMS GetFeatureInfo requests against the overlay service.
type Query struct {
	// BaseURL is the WMS endpoint.
	BaseURL string `mapstructure:"url"`
	// Layers are queried and rendered.
	Layers []string `mapstructure:"layers"`
	// FilterField is the feature attribute compared with the target id.
	FilterField string `mapstructure:"filter_field"`
	// SRS is used when the descriptor does not carry one.
	SRS string `mapstructure:"srs"`
}

// URL returns the feature-info query for point p of d, filtered to targetID.
// Parameters are emitted in sorted order, so equal inputs give equal URLs.
func (q Query) URL(d sample.Descriptor, p Point, targetID string) string {
	srs := d.SRS
	if srs == "" {
		srs = q.SRS
	}
	layers := strings.Join(q.Layers, ",")

	v := url.Values{}
	v.Set("SERVICE", "WMS")
	v.Set("VERSION", "1.1.1")
	v.Set("REQUEST", "GetFeatureInfo")
	v.Set("LAYERS", layers)
	v.Set("QUERY_LAYERS", layers)
	v.Set("STYLES", "")
	v.Set("SRS", srs)
	v.Set("BBOX", d.BBox())
	v.Set("WIDTH", strconv.Itoa(d.Width))
	v.Set("HEIGHT", strconv.Itoa(d.Height))
	v.Set("X", strconv.Itoa(p.X))
	v.Set("Y", strconv.Itoa(p.Y))
	v.Set("INFO_FORMAT", "text/plain")
	v.Set("FEATURE_COUNT", "10")
	if q.FilterField != "" {
		v.Set("CQL_FILTER", q.FilterField+"='"+strings.ReplaceAll(targetID, "'", "''")+"'")
	}

	sep := "?"
	if strings.Contains(q.BaseURL, "?") {
		sep = "&"
	}
	return q.BaseURL + sep + v.Encode()
}
