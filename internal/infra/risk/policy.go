// Package risk classifies accepted candidates onto detection channels and
// the risk taxonomy. The classification policy is yaml: channel routing
// rules, compliance markers, and critical-risk markers, each a set of
// patterns compiled once at load.
package risk

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	regexp "github.com/wasilibs/go-re2"

	"github.com/sentryline/brandscan/internal/domain/scanning"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Policy is the yaml shape of the classification rules.
type Policy struct {
	// HighConfidence and MediumConfidence are the candidate-score cutoffs
	// for the HIGH and MEDIUM risk floors.
	HighConfidence   int `mapstructure:"high_confidence"`
	MediumConfidence int `mapstructure:"medium_confidence"`

	// DefaultMethod is the channel used when no routing rule matches.
	DefaultMethod string `mapstructure:"default_method"`

	// Channels route candidates to detection channels by source platform
	// or by pattern match against platform, URL, and title.
	Channels []ChannelRule `mapstructure:"channels"`

	// Compliance marks candidates that expose takedown or abuse contact
	// surfaces.
	Compliance []PatternRule `mapstructure:"compliance"`

	// Critical marks candidates whose content forces the CRITICAL floor
	// regardless of confidence.
	Critical []PatternRule `mapstructure:"critical"`
}

// ChannelRule is one channel routing entry. Platforms match the candidate's
// source platform exactly (case-insensitive); patterns match platform, URL,
// and title.
type ChannelRule struct {
	Method    string   `mapstructure:"method"`
	Platforms []string `mapstructure:"platforms"`
	Patterns  []string `mapstructure:"patterns"`
}

// PatternRule is a named group of patterns matched against a candidate's
// URL, title, and snippet.
type PatternRule struct {
	Name     string   `mapstructure:"name"`
	Patterns []string `mapstructure:"patterns"`
}

// LoadPolicy reads a policy from yaml bytes and compiles it.
func LoadPolicy(data []byte) (*compiledPolicy, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBuffer(data)); err != nil {
		return nil, fmt.Errorf("read risk policy: %w", err)
	}

	var policy Policy
	if err := v.Unmarshal(&policy); err != nil {
		return nil, fmt.Errorf("unmarshal risk policy: %w", err)
	}

	return compilePolicy(&policy)
}

// LoadPolicyFile reads and compiles a policy from a yaml file on disk.
func LoadPolicyFile(path string) (*compiledPolicy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read risk policy %s: %w", path, err)
	}

	var policy Policy
	if err := v.Unmarshal(&policy); err != nil {
		return nil, fmt.Errorf("unmarshal risk policy %s: %w", path, err)
	}

	return compilePolicy(&policy)
}

// DefaultPolicy compiles the policy embedded in the binary.
func DefaultPolicy() (*compiledPolicy, error) {
	return LoadPolicy(defaultPolicy)
}

type compiledChannel struct {
	method    scanning.MethodKind
	platforms map[string]struct{}
	patterns  []*regexp.Regexp
}

type compiledMarker struct {
	name     string
	patterns []*regexp.Regexp
}

type compiledPolicy struct {
	highConfidence   int
	mediumConfidence int
	defaultMethod    scanning.MethodKind
	channels         []compiledChannel
	compliance       []compiledMarker
	critical         []compiledMarker
}

func compilePolicy(policy *Policy) (*compiledPolicy, error) {
	if policy.HighConfidence <= 0 {
		return nil, fmt.Errorf("risk policy: high_confidence must be positive")
	}
	if policy.MediumConfidence <= 0 || policy.MediumConfidence >= policy.HighConfidence {
		return nil, fmt.Errorf("risk policy: medium_confidence must sit below high_confidence")
	}

	defaultMethod, err := scanning.ParseMethodKind(policy.DefaultMethod)
	if err != nil {
		return nil, fmt.Errorf("risk policy default_method: %w", err)
	}

	cp := &compiledPolicy{
		highConfidence:   policy.HighConfidence,
		mediumConfidence: policy.MediumConfidence,
		defaultMethod:    defaultMethod,
	}

	for _, rule := range policy.Channels {
		method, err := scanning.ParseMethodKind(rule.Method)
		if err != nil {
			return nil, fmt.Errorf("risk policy channel: %w", err)
		}
		cc := compiledChannel{method: method, platforms: make(map[string]struct{}, len(rule.Platforms))}
		for _, platform := range rule.Platforms {
			cc.platforms[strings.ToLower(platform)] = struct{}{}
		}
		cc.patterns, err = compilePatterns(rule.Patterns)
		if err != nil {
			return nil, fmt.Errorf("risk policy channel %s: %w", rule.Method, err)
		}
		cp.channels = append(cp.channels, cc)
	}

	for _, rule := range policy.Compliance {
		marker, err := compileMarker(rule)
		if err != nil {
			return nil, fmt.Errorf("risk policy compliance: %w", err)
		}
		cp.compliance = append(cp.compliance, marker)
	}

	for _, rule := range policy.Critical {
		marker, err := compileMarker(rule)
		if err != nil {
			return nil, fmt.Errorf("risk policy critical: %w", err)
		}
		cp.critical = append(cp.critical, marker)
	}

	return cp, nil
}

func compileMarker(rule PatternRule) (compiledMarker, error) {
	patterns, err := compilePatterns(rule.Patterns)
	if err != nil {
		return compiledMarker{}, fmt.Errorf("marker %s: %w", rule.Name, err)
	}
	return compiledMarker{name: rule.Name, patterns: patterns}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		out = append(out, re)
	}
	return out, nil
}
