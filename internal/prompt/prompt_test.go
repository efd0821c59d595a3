package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allPlaceholders() string {
	return strings.Join(Placeholders, "\n")
}

func TestDefaultTemplateIsValid(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)

	a, err := NewAssembler(tmpl)
	require.NoError(t, err)
	assert.NotEmpty(t, a.Task())
}

func TestAssemble_SubstitutesEveryBlock(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)
	a, err := NewAssembler(tmpl)
	require.NoError(t, err)

	b := Blocks{
		News:        "NEWS-BLOCK",
		Price:       "PRICE-BLOCK",
		Correlation: "CORR-BLOCK",
		FearGreed:   "FG-BLOCK",
		OnChain:     "CHAIN-BLOCK",
		RichList:    "RICH-BLOCK",
		Social:      "SOCIAL-BLOCK",
		Stablecoin:  "STABLE-BLOCK",
		WeekRange:   "Feb 9 - Feb 15, 2026",
	}
	out := a.Assemble(b)

	for _, s := range []string{b.News, b.Price, b.Correlation, b.FearGreed, b.OnChain, b.RichList, b.Social, b.Stablecoin, b.WeekRange} {
		assert.Equal(t, 1, strings.Count(out, s), s)
	}
	assert.NotRegexp(t, `\{\{[^{}]*\}\}`, out)
	assert.Equal(t, out, a.Assemble(b))
}

func TestAssemble_BlockTextIsNotReexpanded(t *testing.T) {
	a, err := NewAssembler(Template{System: allPlaceholders(), Task: "go"})
	require.NoError(t, err)

	out := a.Assemble(Blocks{News: "literal {{PRICE}} in a headline", Price: "p"})
	assert.Contains(t, out, "literal {{PRICE}} in a headline")
	assert.Equal(t, 1, strings.Count(out, "\np\n"))
}

func TestNewAssembler_Rejects(t *testing.T) {
	tests := []struct {
		name string
		tmpl Template
		want string
	}{
		{"empty system", Template{Task: "go"}, "no system text"},
		{"empty task", Template{System: allPlaceholders()}, "no task text"},
		{"missing placeholder", Template{System: strings.Replace(allPlaceholders(), News, "", 1), Task: "go"}, "{{NEWS}} occurs 0 times"},
		{"duplicate placeholder", Template{System: allPlaceholders() + Price, Task: "go"}, "{{PRICE}} occurs 2 times"},
		{"unknown token", Template{System: allPlaceholders() + "{{VOLUME}}", Task: "go"}, "unknown placeholder {{VOLUME}}"},
		{"token in task", Template{System: allPlaceholders(), Task: "see {{NEWS}}"}, "must not contain placeholders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssembler(tt.tmpl)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	body := "system: |\n  " + strings.ReplaceAll(allPlaceholders(), "\n", "\n  ") + "\ntask: write it\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "write it", tmpl.Task)

	_, err = NewAssembler(tmpl)
	assert.NoError(t, err)

	_, err = LoadTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := LoadTemplate("")
	require.NoError(t, err)
	assert.Contains(t, def.System, News)
}
