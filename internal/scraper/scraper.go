// Package scraper turns bank notification emails into payment notices.
// Each bank template is one Extractor; the registry picks the extractor by
// the message's sender address and subject.
package scraper

import "github.com/mcelebi/qrtransfer/internal/model"

type Extractor interface {
	// Match reports whether this extractor understands a message.
	Match(from, subject string) bool
	// Extract parses the HTML body into a notice. A selector that resolves
	// to nothing yields an empty field; malformed date or amount cells fail
	// hard so the caller can skip the message.
	Extract(html string) (model.PaymentNotice, error)
}

type Registry struct {
	extractors []Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// DefaultRegistry holds every known bank template.
func DefaultRegistry() *Registry {
	return NewRegistry(NewHalkbank())
}

func (r *Registry) Find(from, subject string) (Extractor, bool) {
	for _, e := range r.extractors {
		if e.Match(from, subject) {
			return e, true
		}
	}
	return nil, false
}
