// Package prompt assembles the synthesis prompt from formatted data blocks.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholder tokens substituted by Assemble.
const (
	News        = "{{NEWS}}"
	Price       = "{{PRICE}}"
	Correlation = "{{CORRELATION}}"
	FearGreed   = "{{FEAR_GREED}}"
	OnChain     = "{{ONCHAIN}}"
	RichList    = "{{RICHLIST}}"
	Social      = "{{SOCIAL}}"
	Stablecoin  = "{{STABLECOIN}}"
	WeekRange   = "{{WEEK_RANGE}}"
)

// Placeholders lists every token a template must contain.
var Placeholders = []string{News, Price, Correlation, FearGreed, OnChain, RichList, Social, Stablecoin, WeekRange}

var tokenPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)

//go:embed prompts.yaml
var defaultTemplate []byte

// Template is the instructional text sent to the model. System carries the
// placeholders; Task is the user instruction and is sent unchanged.
type Template struct {
	System string `yaml:"system"`
	Task   string `yaml:"task"`
}

// Blocks holds one formatted text block per data category.
type Blocks struct {
	News        string
	Price       string
	Correlation string
	FearGreed   string
	OnChain     string
	RichList    string
	Social      string
	Stablecoin  string
	WeekRange   string
}

// DefaultTemplate returns the embedded template.
func DefaultTemplate() (Template, error) {
	return parse(defaultTemplate)
}

// LoadTemplate reads a template from a YAML file. An empty path returns the
// embedded default.
func LoadTemplate(path string) (Template, error) {
	if path == "" {
		return DefaultTemplate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read prompt file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return t, nil
}

// Assembler substitutes blocks into a validated template.
type Assembler struct {
	tmpl Template
}

// NewAssembler validates tmpl: every placeholder must occur exactly once in
// System, and no other {{...}} token may appear anywhere.
func NewAssembler(tmpl Template) (*Assembler, error) {
	if strings.TrimSpace(tmpl.System) == "" {
		return nil, errors.New("prompt template has no system text")
	}
	if strings.TrimSpace(tmpl.Task) == "" {
		return nil, errors.New("prompt template has no task text")
	}

	for _, p := range Placeholders {
		if n := strings.Count(tmpl.System, p); n != 1 {
			return nil, fmt.Errorf("placeholder %s occurs %d times, want 1", p, n)
		}
	}

	known := make(map[string]bool, len(Placeholders))
	for _, p := range Placeholders {
		known[p] = true
	}
	for _, tok := range tokenPattern.FindAllString(tmpl.System, -1) {
		if !known[tok] {
			return nil, fmt.Errorf("unknown placeholder %s", tok)
		}
	}
	if tok := tokenPattern.FindString(tmpl.Task); tok != "" {
		return nil, fmt.Errorf("task text must not contain placeholders, found %s", tok)
	}

	return &Assembler{tmpl: tmpl}, nil
}

// Assemble returns the system prompt with every placeholder replaced.
func (a *Assembler) Assemble(b Blocks) string {
	r := strings.NewReplacer(
		News, b.News,
		Price, b.Price,
		Correlation, b.Correlation,
		FearGreed, b.FearGreed,
		OnChain, b.OnChain,
		RichList, b.RichList,
		Social, b.Social,
		Stablecoin, b.Stablecoin,
		WeekRange, b.WeekRange,
	)
	return r.Replace(a.tmpl.System)
}

// Task returns the user instruction.
func (a *Assembler) Task() string {
	return a.tmpl.Task
}
