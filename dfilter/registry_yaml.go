package dfilter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fieldSchema is the YAML form of a registry: field names mapped to type
// names, e.g.
//
//	ip.src: ipv4
//	tcp.port: uint
//	http.host: string
type fieldSchema map[string]string

// LoadRegistryYAML builds a registry from YAML field definitions.
func LoadRegistryYAML(data []byte) (*StaticRegistry, error) {
	var schema fieldSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse field schema: %w", err)
	}
	reg := NewStaticRegistry()
	for name, typeName := range schema {
		typ, err := ParseValueType(typeName)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		reg.AddField(name, typ)
	}
	return reg, nil
}

// LoadRegistryFile is LoadRegistryYAML over a file path.
func LoadRegistryFile(path string) (*StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadRegistryYAML(data)
}

// LoadRecordsYAML parses a YAML document of records against a registry. The
// document is a list of mappings; each mapping entry holds either a scalar
// (one occurrence) or a sequence of scalars (multiple occurrences), all
// parsed with the field's declared kind:
//
//	- ip.src: 10.1.1.1
//	  tcp.port: [80, 8080]
func LoadRecordsYAML(data []byte, reg Registry) ([]*MapRecord, error) {
	var docs []map[string]yaml.Node
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}

	records := make([]*MapRecord, 0, len(docs))
	for i, doc := range docs {
		rec := NewMapRecord()
		for name, node := range doc {
			info, ok := reg.Field(name)
			if !ok {
				return nil, fmt.Errorf("record %d: unknown field %q", i, name)
			}
			scalars, err := nodeScalars(node)
			if err != nil {
				return nil, fmt.Errorf("record %d: field %q: %w", i, name, err)
			}
			for _, text := range scalars {
				v, ok := parseLiteralAs(text, info.Type)
				if !ok {
					return nil, fmt.Errorf("record %d: field %q: cannot parse %q as %s", i, name, text, info.Type)
				}
				rec.Set(name, v)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadRecordsFile is LoadRecordsYAML over a file path.
func LoadRecordsFile(path string, reg Registry) ([]*MapRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadRecordsYAML(data, reg)
}

func nodeScalars(node yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("nested values are not supported")
			}
			out = append(out, child.Value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a scalar or a list of scalars")
	}
}
