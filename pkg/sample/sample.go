// Package sample defines the comparable value produced by one fetch of a
// target, and the record a committed sample is persisted as.
//
// A Sample is immutable. Its two projections are computed on first use and
// memoized:
//
//   - CanonicalKey covers every field and the descriptor, and groups exact
//     repeats of the same observation.
//   - SimilarityKey ignores volatile fields and the descriptor, and groups
//     near-duplicates that differ only in, for example, measured coordinates.
package sample

import (
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Field is one normalized name/value pair.
type Field struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Descriptor locates a sample on the overlay service: a bounding box in
// SRS units rendered at Width×Height pixels.
type Descriptor struct {
	MinX   float64 `json:"min_x" yaml:"min_x"`
	MinY   float64 `json:"min_y" yaml:"min_y"`
	MaxX   float64 `json:"max_x" yaml:"max_x"`
	MaxY   float64 `json:"max_y" yaml:"max_y"`
	Width  int     `json:"width" yaml:"width"`
	Height int     `json:"height" yaml:"height"`
	SRS    string  `json:"srs,omitempty" yaml:"srs,omitempty"`
}

// Degenerate reports whether the descriptor covers no pixels.
func (d Descriptor) Degenerate() bool {
	return d.Width <= 0 || d.Height <= 0
}

// BBox formats the bounding box as minx,miny,maxx,maxy.
func (d Descriptor) BBox() string {
	return strings.Join([]string{
		formatFloat(d.MinX), formatFloat(d.MinY),
		formatFloat(d.MaxX), formatFloat(d.MaxY),
	}, ",")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Sample is one parsed observation of a target. Build it with New.
type Sample struct {
	id         string
	fields     []Field
	volatile   map[string]bool
	descriptor *Descriptor
	address    string

	canonicalOnce  sync.Once
	canonical      string
	similarityOnce sync.Once
	similarity     string
}

// Option configures a Sample under construction.
type Option func(*Sample)

// WithVolatile marks fields that SimilarityKey ignores.
func WithVolatile(names ...string) Option {
	return func(s *Sample) {
		for _, n := range names {
			s.volatile[n] = true
		}
	}
}

// WithDescriptor attaches a spatial descriptor.
func WithDescriptor(d Descriptor) Option {
	return func(s *Sample) {
		s.descriptor = &d
	}
}

// WithAddress sets the postal address used by the address memo. It is
// normalized with NormalizeAddress.
func WithAddress(address string) Option {
	return func(s *Sample) {
		s.address = NormalizeAddress(address)
	}
}

// New builds a Sample for target id. Field values are normalized, null
// markers dropped, and fields sorted by name then value.
func New(id string, fields []Field, opts ...Option) *Sample {
	s := &Sample{
		id:       id,
		volatile: make(map[string]bool),
	}
	for _, f := range fields {
		v, ok := NormalizeValue(f.Value)
		if !ok || f.Name == "" {
			continue
		}
		s.fields = append(s.fields, Field{Name: f.Name, Value: v})
	}
	slices.SortStableFunc(s.fields, func(a, b Field) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the target id the sample was fetched for.
func (s *Sample) ID() string { return s.id }

// Fields returns a copy of the normalized fields.
func (s *Sample) Fields() []Field { return slices.Clone(s.fields) }

// Descriptor returns the spatial descriptor, if any.
func (s *Sample) Descriptor() (Descriptor, bool) {
	if s.descriptor == nil {
		return Descriptor{}, false
	}
	return *s.descriptor, true
}

// Address returns the normalized postal address, or "".
func (s *Sample) Address() string { return s.address }

// Get returns the first value of field name.
func (s *Sample) Get(name string) (string, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Volatile returns the sorted names of volatile fields.
func (s *Sample) Volatile() []string {
	names := make([]string, 0, len(s.volatile))
	for n := range s.volatile {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CanonicalKey is the full-equality projection.
func (s *Sample) CanonicalKey() string {
	s.canonicalOnce.Do(func() {
		var b strings.Builder
		s.writeFields(&b, false)
		if s.descriptor != nil {
			d := s.descriptor
			b.WriteString("\x1d")
			b.WriteString(d.BBox())
			b.WriteByte('@')
			b.WriteString(strconv.Itoa(d.Width))
			b.WriteByte('x')
			b.WriteString(strconv.Itoa(d.Height))
			b.WriteByte('/')
			b.WriteString(d.SRS)
		}
		s.canonical = b.String()
	})
	return s.canonical
}

// SimilarityKey is the equality projection that ignores volatile fields and
// the descriptor.
func (s *Sample) SimilarityKey() string {
	s.similarityOnce.Do(func() {
		var b strings.Builder
		s.writeFields(&b, true)
		s.similarity = b.String()
	})
	return s.similarity
}

func (s *Sample) writeFields(b *strings.Builder, skipVolatile bool) {
	b.WriteString(s.id)
	for _, f := range s.fields {
		if skipVolatile && s.volatile[f.Name] {
			continue
		}
		b.WriteString("\x1e")
		b.WriteString(f.Name)
		b.WriteString("\x1f")
		b.WriteString(f.Value)
	}
}

// Equal reports canonical equality.
func (s *Sample) Equal(o *Sample) bool {
	return s.CanonicalKey() == o.CanonicalKey()
}

// Similar reports whether both samples share a similarity key.
func (s *Sample) Similar(o *Sample) bool {
	return s.SimilarityKey() == o.SimilarityKey()
}

// Compare orders samples by canonical key. It is a total order consistent
// with Equal.
func Compare(a, b *Sample) int {
	return strings.Compare(a.CanonicalKey(), b.CanonicalKey())
}
