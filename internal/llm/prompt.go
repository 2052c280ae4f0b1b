package llm

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/tyler-sommer/stick"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/property-verifier/constants"
)

//go:embed prompts/*.prompt
var embeddedPrompts embed.FS

const (
	basePromptName = "base"
	// DefaultMaxTextChars caps the OCR text placed in a prompt.
	DefaultMaxTextChars = 8000
)

// PromptConfig is the YAML front matter of a .prompt file.
type PromptConfig struct {
	Name         string   `yaml:"name"`
	DocumentType string   `yaml:"document_type"`
	Model        string   `yaml:"model"`
	Temperature  *float32 `yaml:"temperature"`
	Focus        []string `yaml:"focus"`
}

type Prompt struct {
	Config PromptConfig
	Body   string
}

// PromptSet holds the shared analysis template plus one entry per document type.
type PromptSet struct {
	env          *stick.Env
	base         Prompt
	byType       map[constants.DocumentType]Prompt
	maxTextChars int
}

// DefaultPrompts loads the prompts compiled into the binary.
func DefaultPrompts() (*PromptSet, error) {
	sub, err := fs.Sub(embeddedPrompts, "prompts")
	if err != nil {
		return nil, err
	}
	return LoadPrompts(sub)
}

// LoadPrompts reads base.prompt and every per-type *.prompt file at the root of fsys.
func LoadPrompts(fsys fs.FS) (*PromptSet, error) {
	names, err := fs.Glob(fsys, "*.prompt")
	if err != nil {
		return nil, err
	}
	set := &PromptSet{
		env:          stick.New(nil),
		byType:       make(map[constants.DocumentType]Prompt),
		maxTextChars: DefaultMaxTextChars,
	}
	haveBase := false
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", name, err)
		}
		p, err := ParsePrompt(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		if p.Config.Name == "" {
			p.Config.Name = strings.TrimSuffix(path.Base(name), ".prompt")
		}
		if p.Config.Name == basePromptName {
			set.base = p
			haveBase = true
			continue
		}
		dt, err := constants.ParseDocumentType(p.Config.DocumentType)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: %w", name, err)
		}
		set.byType[dt] = p
	}
	if !haveBase {
		return nil, fmt.Errorf("missing %s.prompt", basePromptName)
	}
	for _, dt := range constants.AllDocumentTypes() {
		if _, ok := set.byType[dt]; !ok {
			return nil, fmt.Errorf("no prompt for document type %q", dt)
		}
	}
	return set, nil
}

// ParsePrompt splits a .prompt file into its YAML front matter and body.
func ParsePrompt(content string) (Prompt, error) {
	content = strings.TrimLeft(content, "\ufeff \t\r\n")
	if !strings.HasPrefix(content, "---") {
		return Prompt{Body: strings.TrimSpace(content)}, nil
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return Prompt{}, fmt.Errorf("unterminated front matter")
	}
	var cfg PromptConfig
	if err := yaml.Unmarshal([]byte(parts[1]), &cfg); err != nil {
		return Prompt{}, fmt.Errorf("front matter: %w", err)
	}
	return Prompt{Config: cfg, Body: strings.TrimSpace(parts[2])}, nil
}

// SetMaxTextChars changes the OCR text cap; n <= 0 disables it.
func (s *PromptSet) SetMaxTextChars(n int) { s.maxTextChars = n }

// Config returns the effective settings for a document type: the per-type
// front matter with base values filling the gaps.
func (s *PromptSet) Config(dt constants.DocumentType) (PromptConfig, bool) {
	p, ok := s.byType[dt]
	if !ok {
		return PromptConfig{}, false
	}
	cfg := p.Config
	if cfg.Model == "" {
		cfg.Model = s.base.Config.Model
	}
	if cfg.Temperature == nil {
		cfg.Temperature = s.base.Config.Temperature
	}
	return cfg, true
}

// Render builds the analysis prompt for data.
func (s *PromptSet) Render(data ExtractedData) (string, error) {
	p, ok := s.byType[data.DocumentType]
	if !ok {
		return "", fmt.Errorf("no prompt for document type %q", data.DocumentType)
	}

	fieldsJSON, err := indentJSON(data.Fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	layoutJSON, err := indentJSON(data.Layout)
	if err != nil {
		return "", fmt.Errorf("encode layout: %w", err)
	}

	vars := map[string]stick.Value{
		"document_type":    data.DocumentType.String(),
		"raw_text":         truncateRunes(data.RawText, s.maxTextChars),
		"extracted_fields": fieldsJSON,
		"layout":           layoutJSON,
		"focus":            p.Config.Focus,
		"notes":            "",
	}
	if p.Body != "" {
		notes, err := s.execute(p.Body, vars)
		if err != nil {
			return "", fmt.Errorf("render %s notes: %w", p.Config.Name, err)
		}
		vars["notes"] = strings.TrimSpace(notes)
	}

	out, err := s.execute(s.base.Body, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", p.Config.Name, err)
	}
	return strings.TrimSpace(out) + "\n", nil
}

func (s *PromptSet) execute(tpl string, vars map[string]stick.Value) (string, error) {
	var out strings.Builder
	if err := s.env.Execute(tpl, &out, vars); err != nil {
		return "", err
	}
	return out.String(), nil
}

func indentJSON(v any) (string, error) {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	if string(bs) == "null" {
		return "{}", nil
	}
	return string(bs), nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + " ..."
}
