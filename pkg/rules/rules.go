// Package rules models the rule catalog consulted during issue tracking: rule
// existence, activation status and the remediation function used for debt.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors.
var (
	ErrRuleNotFound   = errors.New("rule not found")
	ErrInvalidRuleKey = errors.New("invalid rule key")
	ErrDuplicateRule  = errors.New("duplicate rule")
)

// Key identifies a rule as "repository:rule".
type Key string

// ParseKey validates and returns a rule key.
func ParseKey(s string) (Key, error) {
	repo, rule, ok := strings.Cut(s, ":")
	if !ok || repo == "" || rule == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidRuleKey, s)
	}

	return Key(s), nil
}

// Repository returns the part before the colon.
func (k Key) Repository() string {
	repo, _, _ := strings.Cut(string(k), ":")

	return repo
}

// Rule returns the part after the colon.
func (k Key) Rule() string {
	_, rule, _ := strings.Cut(string(k), ":")

	return rule
}

func (k Key) String() string { return string(k) }

// Status is the lifecycle status of a rule in the catalog.
type Status string

// Rule statuses.
const (
	StatusReady      Status = "READY"
	StatusBeta       Status = "BETA"
	StatusDeprecated Status = "DEPRECATED"
	StatusRemoved    Status = "REMOVED"
)

// Rule is a catalog entry.
type Rule struct {
	Key         Key
	Name        string
	Status      Status
	Type        string
	Severity    string
	Remediation *RemediationFunction
	// External rules are reported by third-party engines that provide their own effort.
	External bool
}

// IsActive reports whether issues of this rule are still raised.
func (r Rule) IsActive() bool {
	return r.Status != StatusRemoved
}

// Repository looks rules up by key. Implementations must be safe for concurrent reads.
type Repository interface {
	// Get returns the rule or an error wrapping ErrRuleNotFound.
	Get(key Key) (Rule, error)
	// Find returns the rule and whether it exists.
	Find(key Key) (Rule, bool)
}

// MemoryRepository is an immutable Repository populated once before tracking starts.
type MemoryRepository struct {
	rules map[Key]Rule
}

// NewMemoryRepository indexes rules by key.
func NewMemoryRepository(rules ...Rule) (*MemoryRepository, error) {
	repo := &MemoryRepository{rules: make(map[Key]Rule, len(rules))}

	for _, r := range rules {
		_, err := ParseKey(string(r.Key))
		if err != nil {
			return nil, err
		}

		if _, dup := repo.rules[r.Key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.Key)
		}

		if r.Status == "" {
			r.Status = StatusReady
		}

		repo.rules[r.Key] = r
	}

	return repo, nil
}

// Get implements Repository.
func (m *MemoryRepository) Get(key Key) (Rule, error) {
	r, ok := m.Find(key)
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, key)
	}

	return r, nil
}

// Find implements Repository.
func (m *MemoryRepository) Find(key Key) (Rule, bool) {
	r, ok := m.rules[key]

	return r, ok
}

// Keys returns all rule keys in ascending order.
func (m *MemoryRepository) Keys() []Key {
	keys := make([]Key, 0, len(m.rules))
	for k := range m.rules {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}
