package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultLabels is the label order of the bundled emotion model.
var DefaultLabels = []string{"angry", "happy", "neutral", "sad", "surprise"}

// Catalog is the ordered, immutable list of class labels. Index i of a
// model output corresponds to Label(i).
type Catalog struct {
	labels []string
}

// NewCatalog copies labels into a new Catalog. Labels must be non-empty and
// unique.
func NewCatalog(labels []string) (Catalog, error) {
	if len(labels) == 0 {
		return Catalog{}, errors.New("catalog has no labels")
	}

	seen := make(map[string]struct{}, len(labels))
	out := make([]string, len(labels))
	for i, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			return Catalog{}, fmt.Errorf("catalog label %d is empty", i)
		}
		if _, dup := seen[l]; dup {
			return Catalog{}, fmt.Errorf("catalog label %q is duplicated", l)
		}
		seen[l] = struct{}{}
		out[i] = l
	}
	return Catalog{labels: out}, nil
}

// MustCatalog is like NewCatalog but panics on error.
func MustCatalog(labels ...string) Catalog {
	c, err := NewCatalog(labels)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCatalog reads a catalog from JSON. Both a plain array of labels and
// an object of the form {"names": {"0": "angry", ...}} are accepted.
func ParseCatalog(data []byte) (Catalog, error) {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return NewCatalog(list)
	}

	var doc struct {
		Names map[string]string `json:"names"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Names) == 0 {
		return Catalog{}, errors.New("parse catalog: no names")
	}

	labels := make([]string, len(doc.Names))
	for key, name := range doc.Names {
		var idx int
		if _, err := fmt.Sscanf(key, "%d", &idx); err != nil || idx < 0 || idx >= len(labels) {
			return Catalog{}, fmt.Errorf("parse catalog: bad index %q", key)
		}
		labels[idx] = name
	}
	return NewCatalog(labels)
}

// Len returns the number of labels.
func (c Catalog) Len() int {
	return len(c.labels)
}

// Label returns the label at index i.
func (c Catalog) Label(i int) string {
	return c.labels[i]
}

// Labels returns a copy of all labels in order.
func (c Catalog) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// Validate checks that width model outputs can be labelled by this catalog.
func (c Catalog) Validate(width int) error {
	if width != len(c.labels) {
		return fmt.Errorf("%w: model has %d outputs, catalog has %d labels",
			ErrCatalogMismatch, width, len(c.labels))
	}
	return nil
}

// MarshalJSON encodes the catalog as a JSON array of labels.
func (c Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.labels)
}
