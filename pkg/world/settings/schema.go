package settings

import (
	"bytes"
	"fmt"
	"io/fs"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBase = "https://minecraft-world.invalid/schema/"

var schemaFiles = map[string]string{
	SettingsFile: "settings.schema.json",
	NoisesFile:   "noises.schema.json",
	RouterFile:   "router.schema.json",
	BiomesFile:   "biomes.schema.json",
	SurfaceFile:  "surface.schema.json",
}

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	entries, err := fs.ReadDir(embedded, "data/schema")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	for _, e := range entries {
		b, err := fs.ReadFile(embedded, "data/schema/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
	}
	out := make(map[string]*jsonschema.Schema, len(schemaFiles))
	for doc, file := range schemaFiles {
		s, err := c.Compile(schemaBase + file)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		out[doc] = s
	}
	return out, nil
}

func validate(file string, raw any) error {
	schemaOnce.Do(func() { schemas, schemaErr = compileSchemas() })
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[file]
	if !ok {
		return fmt.Errorf("no schema for %s", file)
	}
	return s.Validate(normalize(raw))
}

// normalize converts a decoded YAML value into the shapes the validator
// expects from encoding/json: string-keyed maps and float64 numbers.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	}
	return v
}
