package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"expensee/internal/core"
)

// Seed is the optional YAML file with the categories shared by every
// account and the settings new accounts start with.
//
//	settings:
//	  currency: EUR
//	  voucher_prefix: EXP
//	categories:
//	  - name: Salary
//	    type: income
//	  - name: Loans
//	    type: shared
//	    color: "#999999"
type Seed struct {
	Settings   core.Settings  `yaml:"settings"`
	Categories []SeedCategory `yaml:"categories"`
}

type SeedCategory struct {
	ID    string            `yaml:"id"`
	Name  string            `yaml:"name"`
	Color string            `yaml:"color"`
	Kind  core.CategoryKind `yaml:"type"`
}

// LoadSeed reads the seed file. An empty path yields the built-in defaults
// and no categories.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return &Seed{Settings: core.DefaultSettings()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document, rejecting unknown keys. Settings keys
// missing from the document keep their built-in defaults.
func ParseSeed(data []byte) (*Seed, error) {
	s := Seed{Settings: core.DefaultSettings()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	var visible []core.Category
	ids := make(map[string]bool)
	for _, c := range s.GlobalCategories() {
		if ids[c.ID] {
			return nil, fmt.Errorf("seed category %q: duplicate id %s", c.Name, c.ID)
		}
		ids[c.ID] = true
		if err := core.ValidateCategory(c, visible); err != nil {
			return nil, fmt.Errorf("seed category %q: %w", c.Name, err)
		}
		visible = append(visible, c)
	}
	s.Settings = s.Settings.Normalize(core.DefaultSettings())
	if err := s.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return &s, nil
}

// GlobalCategories converts the seed entries. Entries without an id get a
// stable one derived from the name so reseeding is idempotent.
func (s *Seed) GlobalCategories() []core.Category {
	out := make([]core.Category, 0, len(s.Categories))
	for _, c := range s.Categories {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = "global-" + slug(c.Name)
		}
		out = append(out, core.Category{
			ID:    id,
			Name:  strings.TrimSpace(c.Name),
			Color: c.Color,
			Kind:  c.Kind,
		})
	}
	return out
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
