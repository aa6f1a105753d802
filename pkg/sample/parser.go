package sample

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
)

// Parser turns one raw fetch into a Sample. A structural problem is
// reported as an *errors.StructureError; the caller rejects the sample and
// tries again later.
type Parser interface {
	Parse(targetID string, raw []byte) (*Sample, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(targetID string, raw []byte) (*Sample, error)

// Parse implements Parser.
func (f ParserFunc) Parse(targetID string, raw []byte) (*Sample, error) {
	return f(targetID, raw)
}

// HTMLConfig configures HTMLParser. Selectors use a CSS subset: tag, #id,
// .class, [attr], [attr=value], and descendant combinators.
type HTMLConfig struct {
	// Container must be present and non-empty for a document to be accepted.
	Container string `mapstructure:"container"`
	// Identity selects the element whose value must equal the target id.
	Identity string `mapstructure:"identity"`
	// Fields restricts extraction to these field names. Empty keeps all.
	Fields []string `mapstructure:"fields"`
	// Volatile fields are ignored by the similarity key.
	Volatile []string `mapstructure:"volatile"`
	// Address names the field holding the postal address.
	Address string `mapstructure:"address"`
	// Descriptor selects the element carrying data-bbox, data-width,
	// data-height and data-srs.
	Descriptor string `mapstructure:"descriptor"`
}

// DefaultHTMLConfig returns the selectors used when none are configured.
func DefaultHTMLConfig() HTMLConfig {
	return HTMLConfig{
		Container:  "body",
		Identity:   "#record-id",
		Address:    "address",
		Descriptor: "[data-bbox]",
	}
}

// HTMLParser extracts fields from a record detail page.
//
// Fields are read inside the container from input elements (name, value),
// meta elements (itemprop, content) and any element carrying a data-field
// attribute (its text).
type HTMLParser struct {
	cfg        HTMLConfig
	container  selector
	identity   selector
	descriptor selector
}

var _ Parser = (*HTMLParser)(nil)

// NewHTMLParser compiles cfg. Empty selectors fall back to the defaults.
func NewHTMLParser(cfg HTMLConfig) (*HTMLParser, error) {
	def := DefaultHTMLConfig()
	if cfg.Container == "" {
		cfg.Container = def.Container
	}
	if cfg.Identity == "" {
		cfg.Identity = def.Identity
	}
	if cfg.Descriptor == "" {
		cfg.Descriptor = def.Descriptor
	}

	p := &HTMLParser{cfg: cfg}
	var err error
	if p.container, err = parseSelector(cfg.Container); err != nil {
		return nil, errors.WrapValidation("source.container", err)
	}
	if p.identity, err = parseSelector(cfg.Identity); err != nil {
		return nil, errors.WrapValidation("source.identity", err)
	}
	if p.descriptor, err = parseSelector(cfg.Descriptor); err != nil {
		return nil, errors.WrapValidation("source.descriptor", err)
	}
	return p, nil
}

// Parse implements Parser.
func (p *HTMLParser) Parse(targetID string, raw []byte) (*Sample, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.WrapParse("html", targetID, err)
	}

	container := p.container.first(doc)
	if container == nil {
		return nil, errors.NewStructureError(targetID, p.cfg.Container, "")
	}
	if !hasElementChild(container) {
		return nil, errors.NewStructureError(targetID, p.cfg.Container+" *", text(container))
	}

	idNode := p.identity.first(doc)
	if idNode == nil {
		return nil, errors.NewStructureError(targetID, p.cfg.Identity, "")
	}
	if got := nodeValue(idNode); got != targetID {
		return nil, errors.NewIdentityError(targetID, p.cfg.Identity, got)
	}

	fields := p.extractFields(container)

	opts := []Option{WithVolatile(p.cfg.Volatile...)}
	if p.cfg.Address != "" {
		for _, f := range fields {
			if f.Name == p.cfg.Address {
				opts = append(opts, WithAddress(f.Value))
				break
			}
		}
	}
	if n := p.descriptor.first(doc); n != nil {
		d, err := parseDescriptor(n)
		if err != nil {
			return nil, errors.NewStructureError(targetID, p.cfg.Descriptor, err.Error())
		}
		opts = append(opts, WithDescriptor(d))
	}

	return New(targetID, fields, opts...), nil
}

func (p *HTMLParser) extractFields(container *html.Node) []Field {
	var fields []Field
	keep := func(name string) bool {
		return name != "" && (len(p.cfg.Fields) == 0 || slices.Contains(p.cfg.Fields, name))
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "input":
				if name := strings.TrimSpace(attr(n, "name")); keep(name) {
					fields = append(fields, Field{Name: name, Value: attr(n, "value")})
				}
			case n.Data == "meta":
				if name := strings.TrimSpace(attr(n, "itemprop")); keep(name) {
					fields = append(fields, Field{Name: name, Value: attr(n, "content")})
				}
			default:
				if name, ok := lookupAttr(n, "data-field"); ok && keep(strings.TrimSpace(name)) {
					fields = append(fields, Field{Name: strings.TrimSpace(name), Value: text(n)})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(container)
	return fields
}

// nodeValue reads an element's value attribute, content attribute, or text.
func nodeValue(n *html.Node) string {
	if v, ok := lookupAttr(n, "value"); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := lookupAttr(n, "content"); ok {
		return strings.TrimSpace(v)
	}
	return text(n)
}

func parseDescriptor(n *html.Node) (Descriptor, error) {
	var d Descriptor
	parts := strings.Split(attr(n, "data-bbox"), ",")
	if len(parts) != 4 {
		return d, errors.New("bbox needs four comma separated numbers")
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return d, err
		}
		coords[i] = f
	}
	d.MinX, d.MinY, d.MaxX, d.MaxY = coords[0], coords[1], coords[2], coords[3]

	var err error
	if w := strings.TrimSpace(attr(n, "data-width")); w != "" {
		if d.Width, err = strconv.Atoi(w); err != nil {
			return d, err
		}
	}
	if h := strings.TrimSpace(attr(n, "data-height")); h != "" {
		if d.Height, err = strconv.Atoi(h); err != nil {
			return d, err
		}
	}
	if d.Width < 0 || d.Height < 0 || d.Width > constants.MaxDescriptorPixels || d.Height > constants.MaxDescriptorPixels {
		return d, fmt.Errorf("size %dx%d out of range", d.Width, d.Height)
	}
	d.SRS = strings.TrimSpace(attr(n, "data-srs"))
	return d, nil
}
