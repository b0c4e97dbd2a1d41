package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// format is the syntax of a config file, picked by extension.
type format string

const (
	formatJSON format = "json"
	formatYAML format = "yaml"
)

func formatOf(name string) format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

// toJSON returns raw as JSON so every format goes through the same strict
// decoder.
func (f format) toJSON(raw []byte) ([]byte, error) {
	if f != formatYAML {
		return raw, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind == 0 {
		return []byte("{}"), nil
	}
	v, err := yamlValue(&doc, "")
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("re-encode yaml: %w", err)
	}
	return out, nil
}

// yamlValue converts n into plain maps, slices and scalars. Mapping keys
// must be unique scalars; errors name the dotted path and source line.
func yamlValue(n *yaml.Node, path string) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return map[string]any{}, nil
		}
		return yamlValue(n.Content[0], path)
	case yaml.AliasNode:
		return yamlValue(n.Alias, path)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode || k.Tag == "!!merge" {
				return nil, fmt.Errorf("%s: line %d: mapping keys must be plain scalars", pathOrRoot(path), k.Line)
			}
			child := k.Value
			if path != "" {
				child = path + "." + k.Value
			}
			if _, dup := m[k.Value]; dup {
				return nil, fmt.Errorf("%s: line %d: duplicate key", child, k.Line)
			}
			v, err := yamlValue(n.Content[i+1], child)
			if err != nil {
				return nil, err
			}
			m[k.Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for i, c := range n.Content {
			v, err := yamlValue(c, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", pathOrRoot(path), n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%s: line %d: unsupported yaml node", pathOrRoot(path), n.Line)
	}
}

func pathOrRoot(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
