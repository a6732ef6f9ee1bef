package recordapi

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FixtureDomain holds the canned rows served for one domain.
type FixtureDomain struct {
	Visits        []VisitRow        `yaml:"visits"`
	Registrations []RegistrationRow `yaml:"registrations"`
}

// FixtureClient serves Client from a YAML document keyed by domain:
//
//	domains:
//	  demo:
//	    visits: [...]
//	    registrations: [...]
type FixtureClient struct {
	Domains map[string]FixtureDomain `yaml:"domains"`
}

// LoadFixture opens and parses a fixture file.
func LoadFixture(path string) (*FixtureClient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "recordapi: open fixture %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ParseFixture(f)
}

// ParseFixture decodes a fixture document.
func ParseFixture(r io.Reader) (*FixtureClient, error) {
	var fc FixtureClient
	if err := yaml.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "recordapi: decode fixture")
	}
	if fc.Domains == nil {
		fc.Domains = map[string]FixtureDomain{}
	}
	return &fc, nil
}

func (f *FixtureClient) domain(domain string) (FixtureDomain, error) {
	d, ok := f.Domains[domain]
	if !ok {
		return FixtureDomain{}, eris.Errorf("recordapi: fixture has no domain %q", domain)
	}
	return d, nil
}

func (f *FixtureClient) CountVisits(_ context.Context, domain string) (int, error) {
	d, err := f.domain(domain)
	return len(d.Visits), err
}

func (f *FixtureClient) ListVisits(_ context.Context, domain string) ([]VisitRow, error) {
	d, err := f.domain(domain)
	if err != nil {
		return nil, err
	}
	return append([]VisitRow(nil), d.Visits...), nil
}

func (f *FixtureClient) CountRegistrations(_ context.Context, domain string) (int, error) {
	d, err := f.domain(domain)
	return len(d.Registrations), err
}

func (f *FixtureClient) ListRegistrations(_ context.Context, domain string) ([]RegistrationRow, error) {
	d, err := f.domain(domain)
	if err != nil {
		return nil, err
	}
	return append([]RegistrationRow(nil), d.Registrations...), nil
}
