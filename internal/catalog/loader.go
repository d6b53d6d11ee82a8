package catalog

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	topologySchemaURI = "hostmap://schemas/topology.schema.json"
	mappingSchemaURI  = "hostmap://schemas/mapping.schema.json"
)

var (
	schemasOnce    sync.Once
	topologySchema *jsonschema.Schema
	mappingSchema  *jsonschema.Schema
	schemasErr     error
)

// loadSchemas compiles the embedded document schemas once
func loadSchemas() error {
	schemasOnce.Do(func() {
		topologySchema, schemasErr = compileSchema(topologySchemaURI, "schemas/topology.schema.json")
		if schemasErr != nil {
			return
		}
		mappingSchema, schemasErr = compileSchema(mappingSchemaURI, "schemas/mapping.schema.json")
	})
	return schemasErr
}

func compileSchema(uri, path string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(uri, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", path, err)
	}
	schema, err := compiler.Compile(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", path, err)
	}
	return schema, nil
}

// decodeWithSchema converts a YAML (or JSON) document to JSON, checks it against
// the schema and decodes it into out
func decodeWithSchema(data []byte, schema *jsonschema.Schema, out interface{}) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document is empty")
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if err := json.Unmarshal(jsonData, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// ParseTopology parses and validates a topology document
func ParseTopology(data []byte) (*Topology, error) {
	if err := loadSchemas(); err != nil {
		return nil, err
	}

	var t Topology
	if err := decodeWithSchema(data, topologySchema, &t); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}

	t.WithDefaults()
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseMapping parses a mapping document. Host and component ids are checked
// later, against the catalog, when the mapping is loaded into a set.
func ParseMapping(data []byte) (*MappingDocument, error) {
	if err := loadSchemas(); err != nil {
		return nil, err
	}

	var doc MappingDocument
	if err := decodeWithSchema(data, mappingSchema, &doc); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}

	if doc.APIVersion == "" {
		doc.APIVersion = DefaultAPIVersion
	}
	if doc.Kind == "" {
		doc.Kind = MappingKind
	}
	if doc.Kind != MappingKind {
		return nil, ValidationErrors{{
			Field:   "kind",
			Message: fmt.Sprintf("unsupported kind %q, expected %q", doc.Kind, MappingKind),
		}}
	}
	return &doc, nil
}

// LoadTopologyFile reads a topology file and builds its catalog
func LoadTopologyFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	t, err := ParseTopology(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(t)
}

// LoadMappingFile reads a mapping file
func LoadMappingFile(path string) (*MappingDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	doc, err := ParseMapping(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
