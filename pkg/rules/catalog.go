package rules

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned for malformed catalog documents.
var ErrInvalidCatalog = errors.New("invalid rule catalog")

type catalogDocument struct {
	Rules []catalogRule `yaml:"rules"`
}

type catalogRule struct {
	Key         string             `yaml:"key"`
	Name        string             `yaml:"name"`
	Status      string             `yaml:"status"`
	Type        string             `yaml:"type"`
	Severity    string             `yaml:"severity"`
	External    bool               `yaml:"external"`
	Remediation *catalogRemediation `yaml:"remediation"`
}

type catalogRemediation struct {
	Function      string `yaml:"function"`
	GapMultiplier string `yaml:"gap_multiplier"`
	BaseEffort    string `yaml:"base_effort"`
}

// LoadCatalogFile reads a YAML rule catalog from disk.
func LoadCatalogFile(path string) (*MemoryRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule catalog: %w", err)
	}
	defer f.Close()

	return LoadCatalog(f)
}

// LoadCatalog decodes a YAML rule catalog of the form:
//
//	rules:
//	  - key: go:S1000
//	    status: READY
//	    remediation:
//	      function: LINEAR
//	      gap_multiplier: 5min
func LoadCatalog(r io.Reader) (*MemoryRepository, error) {
	var doc catalogDocument

	err := yaml.NewDecoder(r).Decode(&doc)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	list := make([]Rule, 0, len(doc.Rules))

	for _, cr := range doc.Rules {
		rule, convErr := cr.toRule()
		if convErr != nil {
			return nil, convErr
		}

		list = append(list, rule)
	}

	return NewMemoryRepository(list...)
}

func (cr catalogRule) toRule() (Rule, error) {
	key, err := ParseKey(cr.Key)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	rule := Rule{
		Key:      key,
		Name:     cr.Name,
		Status:   Status(cr.Status),
		Type:     cr.Type,
		Severity: cr.Severity,
		External: cr.External,
	}

	switch rule.Status {
	case "", StatusReady, StatusBeta, StatusDeprecated, StatusRemoved:
	default:
		return Rule{}, fmt.Errorf("%w: rule %s has unknown status %q", ErrInvalidCatalog, key, cr.Status)
	}

	if cr.Remediation != nil {
		fn := &RemediationFunction{
			Type:          FunctionType(cr.Remediation.Function),
			GapMultiplier: cr.Remediation.GapMultiplier,
			BaseEffort:    cr.Remediation.BaseEffort,
		}

		if !fn.Type.Valid() {
			return Rule{}, fmt.Errorf("%w: rule %s has unknown remediation function %q",
				ErrInvalidCatalog, key, cr.Remediation.Function)
		}

		rule.Remediation = fn
	}

	return rule, nil
}
