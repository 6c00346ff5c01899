package lexicon

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/normanking/signavatar/internal/sign"
)

// ErrInvalidLexicon is returned for files that fail to parse or validate.
var ErrInvalidLexicon = errors.New("invalid lexicon")

//go:embed lexicon.schema.json
var schemaJSON []byte

//go:embed builtin/*.yaml
var builtinFS embed.FS

const schemaURL = "lexicon.schema.json"

// File is the on-disk lexicon format.
type File struct {
	Language sign.Language    `yaml:"language"`
	Entries  map[string]Entry `yaml:"entries"`
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// Parse decodes and validates a YAML lexicon document.
func Parse(data []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLexicon, err)
	}
	if err := validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLexicon, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLexicon, err)
	}
	lang, ok := sign.ParseLanguage(string(f.Language))
	if !ok {
		return nil, fmt.Errorf("%w: unknown language %q", ErrInvalidLexicon, f.Language)
	}
	f.Language = lang
	return &f, nil
}

// validate runs the schema over doc after a JSON round trip, so the validator
// only sees JSON types.
func validate(doc any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

// ParseFile reads and parses one lexicon file.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

var builtins = sync.OnceValues(func() (map[sign.Language]*Table, error) {
	out := make(map[sign.Language]*Table)
	for _, lang := range sign.Languages() {
		name := "builtin/" + strings.ToLower(string(lang)) + ".yaml"
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		f, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[lang] = NewTable(lang, f.Entries)
	}
	return out, nil
})

// Builtin returns a fresh copy of the built-in table for lang. Unknown
// languages get the default language.
func Builtin(lang sign.Language) *Table {
	tables, err := builtins()
	if err != nil {
		panic(fmt.Sprintf("lexicon: embedded tables: %v", err))
	}
	t, ok := tables[lang]
	if !ok {
		t = tables[sign.DefaultLanguage]
	}
	return t.clone()
}

// Load returns the built-in registry with overrides from dir merged in. Files
// are named after the language, e.g. ASL.yaml or asl.yaml. A missing or empty
// dir yields the built-ins alone.
func Load(dir string) (*Registry, error) {
	r := NewRegistry()
	if dir == "" {
		return r, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read lexicon dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		f, err := ParseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(entry.Name(), ext)
		if lang, ok := sign.ParseLanguage(stem); !ok || lang != f.Language {
			return nil, fmt.Errorf("%s: %w: file name does not match language %s", entry.Name(), ErrInvalidLexicon, f.Language)
		}
		r.tables[f.Language].Merge(f.Entries)
	}
	return r, nil
}
