// Package catalog holds the immutable voice catalog. It is built once at
// process start and only read afterwards, so lookups need no locking.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"kokorod/internal/common/fsutil"
	"kokorod/pkg/types"
)

// Catalog is a read-only set of voices keyed by id.
type Catalog struct {
	byID  map[string]types.Voice
	order []string
}

// New builds a catalog from voices. Ids must be unique and non-empty and
// the gender must be one of the known categories.
func New(voices []types.Voice) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]types.Voice, len(voices))}
	for _, v := range voices {
		if strings.TrimSpace(v.ID) == "" {
			return nil, fmt.Errorf("voice with empty id")
		}
		if _, dup := c.byID[v.ID]; dup {
			return nil, fmt.Errorf("duplicate voice id %q", v.ID)
		}
		switch v.Gender {
		case types.GenderMale, types.GenderFemale, types.GenderNeutral:
		default:
			return nil, fmt.Errorf("voice %q: unknown gender %q", v.ID, v.Gender)
		}
		c.byID[v.ID] = v
		c.order = append(c.order, v.ID)
	}
	if len(c.order) == 0 {
		return nil, fmt.Errorf("empty voice catalog")
	}
	return c, nil
}

// Default returns the built-in Kokoro catalog.
func Default() *Catalog {
	c, err := New(builtinVoices)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile reads a catalog from a YAML or JSON file. The file holds either a
// bare list of voices or an object with a "voices" key.
func LoadFile(path string) (*Catalog, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read voices file: %w", err)
	}
	var doc struct {
		Voices []types.Voice `json:"voices" yaml:"voices"`
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &doc); err != nil {
			var list []types.Voice
			if err2 := yaml.Unmarshal(b, &list); err2 != nil {
				return nil, fmt.Errorf("parse voices file: %w", err)
			}
			doc.Voices = list
		}
	case ".json":
		if err := json.Unmarshal(b, &doc); err != nil {
			var list []types.Voice
			if err2 := json.Unmarshal(b, &list); err2 != nil {
				return nil, fmt.Errorf("parse voices file: %w", err)
			}
			doc.Voices = list
		}
	default:
		return nil, fmt.Errorf("unsupported voices file extension: %s", ext)
	}
	return New(doc.Voices)
}

// Get looks up a voice by id.
func (c *Catalog) Get(id string) (types.Voice, bool) {
	v, ok := c.byID[id]
	return v, ok
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// List returns the voices in catalog order. The slice is a copy.
func (c *Catalog) List() []types.Voice {
	out := make([]types.Voice, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the sorted voice ids.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// Len returns the number of voices.
func (c *Catalog) Len() int { return len(c.order) }
