package reference

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout for reference-table seeds. All sections are
// optional.
type SeedFile struct {
	Catalog []struct {
		ExamName  string `yaml:"exam_name"`
		Modality  string `yaml:"modality"`
		Specialty string `yaml:"specialty"`
		Category  string `yaml:"category"`
	} `yaml:"catalog"`
	PrioritySynonyms map[string]string `yaml:"priority_synonyms"`
	ClientAliases    map[string]string `yaml:"client_aliases"`
	Prices           []struct {
		ExamName string  `yaml:"exam_name"`
		Modality string  `yaml:"modality"`
		Value    float64 `yaml:"value"`
	} `yaml:"prices"`
	Quebra map[string][]string `yaml:"quebra"`
	ExclusionCriteria []struct {
		Field    string `yaml:"field"`
		Value    string `yaml:"value"`
		Priority int    `yaml:"priority"`
	} `yaml:"exclusion_criteria"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &sf, nil
}

// SeedCounts reports how many rows each section wrote.
type SeedCounts struct {
	Catalog           int `json:"catalog"`
	PrioritySynonyms  int `json:"priority_synonyms"`
	ClientAliases     int `json:"client_aliases"`
	Prices            int `json:"prices"`
	Quebra            int `json:"quebra"`
	ExclusionCriteria int `json:"exclusion_criteria"`
}

// Seed upserts every section of the file into the reference tables.
func Seed(ctx context.Context, repo Repository, sf *SeedFile) (*SeedCounts, error) {
	counts := &SeedCounts{}

	entries := make([]Entry, 0, len(sf.Catalog))
	for _, c := range sf.Catalog {
		entries = append(entries, Entry{
			ExamName: c.ExamName, Modality: c.Modality,
			Specialty: c.Specialty, Category: c.Category,
		})
	}
	n, err := repo.UpsertEntries(ctx, entries)
	counts.Catalog = n
	if err != nil {
		return counts, err
	}

	syns := make([]PrioritySynonym, 0, len(sf.PrioritySynonyms))
	for syn, canonical := range sf.PrioritySynonyms {
		syns = append(syns, PrioritySynonym{Synonym: syn, Canonical: canonical})
	}
	n, err = repo.UpsertPrioritySynonyms(ctx, syns)
	counts.PrioritySynonyms = n
	if err != nil {
		return counts, err
	}

	aliases := make([]ClientAlias, 0, len(sf.ClientAliases))
	for alias, canonical := range sf.ClientAliases {
		aliases = append(aliases, ClientAlias{Alias: alias, Canonical: canonical})
	}
	n, err = repo.UpsertClientAliases(ctx, aliases)
	counts.ClientAliases = n
	if err != nil {
		return counts, err
	}

	prices := make([]PriceEntry, 0, len(sf.Prices))
	for _, p := range sf.Prices {
		prices = append(prices, PriceEntry{ExamName: p.ExamName, Modality: p.Modality, Value: p.Value})
	}
	n, err = repo.UpsertPrices(ctx, prices)
	counts.Prices = n
	if err != nil {
		return counts, err
	}

	quebra := make([]QuebraRule, 0, len(sf.Quebra))
	for name, derived := range sf.Quebra {
		quebra = append(quebra, QuebraRule{ExamName: name, DerivedExams: derived})
	}
	n, err = repo.UpsertQuebraRules(ctx, quebra)
	counts.Quebra = n
	if err != nil {
		return counts, err
	}

	criteria := make([]ExclusionCriterion, 0, len(sf.ExclusionCriteria))
	for _, c := range sf.ExclusionCriteria {
		criteria = append(criteria, ExclusionCriterion{
			Field: c.Field, Value: c.Value, Priority: c.Priority, Active: true,
		})
	}
	n, err = repo.UpsertExclusionCriteria(ctx, criteria)
	counts.ExclusionCriteria = n
	if err != nil {
		return counts, err
	}

	return counts, nil
}
