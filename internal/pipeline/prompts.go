package pipeline

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"seoforge/internal/domain"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptTemplate is one request template. System and User are text/template
// sources rendered against the stage's input.
type PromptTemplate struct {
	System    string `yaml:"system"`
	User      string `yaml:"user"`
	MaxTokens int    `yaml:"max_tokens"`
	JSON      bool   `yaml:"json"`
}

// Prompts holds the templates for every generation request the pipeline makes.
type Prompts struct {
	Structure PromptTemplate `yaml:"structure"`
	Content   PromptTemplate `yaml:"content"`
	Image     PromptTemplate `yaml:"image"`
}

// LoadPrompts reads prompt templates from path, or the embedded defaults when
// path is empty.
func LoadPrompts(path string) (*Prompts, error) {
	data := defaultPrompts
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts %s: %w", path, err)
		}
		data = raw
	}
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultPrompts returns the embedded templates.
func DefaultPrompts() *Prompts {
	p, err := LoadPrompts("")
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Prompts) validate() error {
	for name, tmpl := range map[string]PromptTemplate{"structure": p.Structure, "content": p.Content} {
		if strings.TrimSpace(tmpl.System) == "" || strings.TrimSpace(tmpl.User) == "" {
			return fmt.Errorf("prompts: %s needs system and user templates", name)
		}
	}
	for name, src := range map[string]string{
		"structure.system": p.Structure.System,
		"structure.user":   p.Structure.User,
		"content.system":   p.Content.System,
		"content.user":     p.Content.User,
		"image.user":       p.Image.User,
	} {
		if _, err := parseTemplate(name, src); err != nil {
			return err
		}
	}
	return nil
}

// Render executes the template against data and returns a request bundle.
func (t PromptTemplate) Render(name string, data any) (domain.PromptBundle, error) {
	system, err := renderText(name+".system", t.System, data)
	if err != nil {
		return domain.PromptBundle{}, err
	}
	user, err := renderText(name+".user", t.User, data)
	if err != nil {
		return domain.PromptBundle{}, err
	}
	return domain.PromptBundle{
		Name:      name,
		System:    system,
		User:      user,
		JSON:      t.JSON,
		MaxTokens: t.MaxTokens,
	}, nil
}

func parseTemplate(name, src string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("prompts: parse %s: %w", name, err)
	}
	return tmpl, nil
}

func renderText(name, src string, data any) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	tmpl, err := parseTemplate(name, src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompts: render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
