package service

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const fallbackIntent = "fallback"

var (
	ErrFallbackRequired = errors.New("intent fallback response required")
	ErrRuleInvalid      = errors.New("intent rule invalid")
)

// IntentRule asocia disparadores (substrings) con una respuesta fija.
type IntentRule struct {
	Name     string   `yaml:"name"`
	Triggers []string `yaml:"triggers"`
	Response string   `yaml:"response"`
}

// IntentResolver clasifica texto libre con la politica first-match-wins.
// El orden declarado de las reglas es el unico desempate.
type IntentResolver struct {
	rules    []IntentRule
	fallback IntentRule
}

func NewIntentResolver(fallback string, rules ...IntentRule) (*IntentResolver, error) {
	if strings.TrimSpace(fallback) == "" {
		return nil, ErrFallbackRequired
	}
	normalized := make([]IntentRule, 0, len(rules))
	for i, rule := range rules {
		if strings.TrimSpace(rule.Response) == "" {
			return nil, fmt.Errorf("%w: rule %d has empty response", ErrRuleInvalid, i)
		}
		triggers := make([]string, 0, len(rule.Triggers))
		for _, trig := range rule.Triggers {
			trig = strings.ToLower(trig)
			if strings.TrimSpace(trig) == "" {
				continue
			}
			triggers = append(triggers, trig)
		}
		if len(triggers) == 0 {
			return nil, fmt.Errorf("%w: rule %d has no triggers", ErrRuleInvalid, i)
		}
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			name = fmt.Sprintf("rule_%d", i+1)
		}
		normalized = append(normalized, IntentRule{Name: name, Triggers: triggers, Response: rule.Response})
	}
	return &IntentResolver{
		rules:    normalized,
		fallback: IntentRule{Name: fallbackIntent, Response: fallback},
	}, nil
}

func mustIntentResolver(fallback string, rules ...IntentRule) *IntentResolver {
	r, err := NewIntentResolver(fallback, rules...)
	if err != nil {
		panic(err)
	}
	return r
}

// Classify devuelve la primera regla que matchea, o la regla fallback.
func (r *IntentResolver) Classify(input string) IntentRule {
	normalized := strings.ToLower(input)
	for _, rule := range r.rules {
		for _, trig := range rule.Triggers {
			if strings.Contains(normalized, trig) {
				return rule
			}
		}
	}
	return r.fallback
}

// Resolve es total: siempre devuelve una respuesta no vacia.
func (r *IntentResolver) Resolve(input string) string {
	return r.Classify(input).Response
}

// Rules devuelve una copia de las reglas en orden declarado.
func (r *IntentResolver) Rules() []IntentRule {
	out := make([]IntentRule, len(r.rules))
	copy(out, r.rules)
	return out
}

type intentRuleFile struct {
	Fallback string       `yaml:"fallback"`
	Rules    []IntentRule `yaml:"rules"`
}

// ParseIntentRules construye un resolver desde YAML. El orden de la lista es la prioridad.
func ParseIntentRules(data []byte) (*IntentResolver, error) {
	var file intentRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse intent rules: %w", err)
	}
	return NewIntentResolver(file.Fallback, file.Rules...)
}

func LoadIntentRules(path string) (*IntentResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent rules: %w", err)
	}
	return ParseIntentRules(data)
}
