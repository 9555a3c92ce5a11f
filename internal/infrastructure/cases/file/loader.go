// Package file loads the case registry from a JSON or YAML file that maps
// case names to criteria text.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/case-analyst/internal/core/domain"
)

// Case files are often pasted from word processors.
var typographicQuotes = strings.NewReplacer("“", `"`, "”", `"`)

type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

func (l *Loader) Load(ctx context.Context, path string) ([]domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrConfig, "load cases", fmt.Errorf("%w: cases file %q", domain.ErrNotFound, path))
		}
		return nil, domain.WrapError(domain.ErrConfig, "load cases", err)
	}

	var cases []domain.Case
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cases, err = parseYAML(raw)
	default:
		cases, err = parseJSON(raw)
		if err != nil {
			if cleaned := typographicQuotes.Replace(string(raw)); cleaned != string(raw) {
				if retried, retryErr := parseJSON([]byte(cleaned)); retryErr == nil {
					cases, err = retried, nil
				}
			}
		}
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "load cases "+path, err)
	}
	if len(cases) == 0 {
		return nil, domain.WrapError(domain.ErrConfig, "load cases "+path, errors.New("no cases defined"))
	}

	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}

// parseJSON walks the token stream so duplicate names and nested values are
// reported instead of silently collapsed.
func parseJSON(raw []byte) ([]domain.Case, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("cases file must contain a JSON object")
	}

	seen := make(map[string]struct{})
	var cases []domain.Case
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		name, _ := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		criteria, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("case %q: criteria must be a string", name)
		}
		c, err := newCase(name, criteria, seen)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse json: unexpected data after object")
	}
	return cases, nil
}

func parseYAML(raw []byte) ([]domain.Case, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("cases file must contain a mapping")
	}

	seen := make(map[string]struct{})
	cases := make([]domain.Case, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode || value.Tag != "!!str" {
			return nil, fmt.Errorf("case %q (line %d): criteria must be a string", key.Value, value.Line)
		}
		c, err := newCase(key.Value, value.Value, seen)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func newCase(name, criteria string, seen map[string]struct{}) (domain.Case, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Case{}, errors.New("case name must not be empty")
	}
	if _, dup := seen[name]; dup {
		return domain.Case{}, fmt.Errorf("duplicate case %q", name)
	}
	seen[name] = struct{}{}
	return domain.Case{Name: name, Criteria: criteria}, nil
}
