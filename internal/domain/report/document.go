package report

import "github.com/mirono/webtrees/pkg/errors"

// Document is the backend-independent definition of one report: normalized
// page geometry, title and description metadata, and the named styles its
// elements draw with. Render backends are constructed around a document.
type Document struct {
	geometry    Geometry
	title       string
	description string
	styles      map[string]Style
	styleOrder  []string
}

// NewDocument normalizes the page setup and returns an empty document.
func NewDocument(setup PageSetup) (*Document, error) {
	g, err := setup.Normalize()
	if err != nil {
		return nil, err
	}
	return &Document{
		geometry: g,
		styles:   make(map[string]Style),
	}, nil
}

// Geometry returns the normalized page geometry in points.
func (d *Document) Geometry() Geometry {
	return d.geometry
}

// SetTitle sets the report title. Backends surface it as document metadata
// and generators usually also print it through a header element.
func (d *Document) SetTitle(title string) {
	d.title = title
}

// Title returns the report title.
func (d *Document) Title() string {
	return d.title
}

// AddDescription appends a fragment to the report description. Fragments
// accumulate in call order.
func (d *Document) AddDescription(fragment string) {
	d.description += fragment
}

// Description returns the accumulated description.
func (d *Document) Description() string {
	return d.description
}

// AddStyle registers a named style. Registering a name again replaces the
// earlier definition.
func (d *Document) AddStyle(s Style) error {
	if s.Name == "" {
		return errors.New(errors.ErrCodeValidation, "style name is required")
	}
	if _, ok := d.styles[s.Name]; !ok {
		d.styleOrder = append(d.styleOrder, s.Name)
	}
	d.styles[s.Name] = s
	return nil
}

// Style resolves a named style. An unknown name falls back to the first
// registered style so a missing definition degrades instead of failing a
// whole report; the error is returned only when no styles exist at all.
func (d *Document) Style(name string) (Style, error) {
	if s, ok := d.styles[name]; ok {
		return s, nil
	}
	if len(d.styleOrder) > 0 {
		return d.styles[d.styleOrder[0]], nil
	}
	return Style{}, errors.New(errors.ErrCodeStyleNotFound, "style not registered").WithDetail(name)
}

// Styles returns every registered style in registration order.
func (d *Document) Styles() []Style {
	out := make([]Style, 0, len(d.styleOrder))
	for _, name := range d.styleOrder {
		out = append(out, d.styles[name])
	}
	return out
}
