package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DomainSpec describes one knowledge partition and where its retrieval
// backends live. Patterns are matched against raw query text during
// classification.
type DomainSpec struct {
	ID               string   `yaml:"id" json:"id"`
	Description      string   `yaml:"description" json:"description"`
	Patterns         []string `yaml:"patterns" json:"patterns"`
	VectorCollection string   `yaml:"vector_collection" json:"vector_collection"`
	GraphLabel       string   `yaml:"graph_label" json:"graph_label"`
	DocumentCategory string   `yaml:"document_category" json:"document_category"`

	compiled []*regexp.Regexp
}

// Matches reports whether any configured pattern hits the query text.
// Matching is case-insensitive and deterministic.
func (d *DomainSpec) Matches(query string) bool {
	for _, re := range d.compiled {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}

// DomainRegistry holds the configured domains in file order plus the default
// fallback domain.
type DomainRegistry struct {
	Default string       `yaml:"default_domain"`
	Domains []DomainSpec `yaml:"domains"`

	byID map[string]*DomainSpec
}

func LoadDomainRegistry(path string) (*DomainRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain registry: %w", err)
	}
	return ParseDomainRegistry(raw)
}

func ParseDomainRegistry(raw []byte) (*DomainRegistry, error) {
	var reg DomainRegistry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parse domain registry: %w", err)
	}
	if len(reg.Domains) == 0 {
		return nil, fmt.Errorf("domain registry has no domains")
	}

	reg.byID = make(map[string]*DomainSpec, len(reg.Domains))
	for i := range reg.Domains {
		d := &reg.Domains[i]
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("domain %d: id is required", i)
		}
		if _, exists := reg.byID[d.ID]; exists {
			return nil, fmt.Errorf("domain %s: duplicate id", d.ID)
		}
		for _, p := range d.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("domain %s: pattern %q: %w", d.ID, p, err)
			}
			d.compiled = append(d.compiled, re)
		}
		reg.byID[d.ID] = d
	}

	if reg.Default == "" {
		reg.Default = reg.Domains[0].ID
	}
	if _, ok := reg.byID[reg.Default]; !ok {
		return nil, fmt.Errorf("default domain %s is not configured", reg.Default)
	}
	return &reg, nil
}

// MatchDomains returns the ids of all domains whose patterns hit the query,
// in registry file order.
func (r *DomainRegistry) MatchDomains(query string) []string {
	var out []string
	for i := range r.Domains {
		if r.Domains[i].Matches(query) {
			out = append(out, r.Domains[i].ID)
		}
	}
	return out
}

func (r *DomainRegistry) DefaultDomain() string {
	return r.Default
}

// HasDomain reports whether the id names a configured domain.
func (r *DomainRegistry) HasDomain(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Lookup returns the spec for a domain id, or nil when unknown.
func (r *DomainRegistry) Lookup(id string) *DomainSpec {
	return r.byID[id]
}

// IDs returns the configured domain ids in file order.
func (r *DomainRegistry) IDs() []string {
	out := make([]string, 0, len(r.Domains))
	for i := range r.Domains {
		out = append(out, r.Domains[i].ID)
	}
	return out
}
