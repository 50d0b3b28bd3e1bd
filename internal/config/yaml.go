package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toStrictJSON returns config bytes ready for the strict JSON decoder. A
// .yaml/.yml file is decoded and re-encoded as JSON first, so
// DisallowUnknownFields covers both formats through one schema.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("re-encode yaml as json: %w", err)
	}
	return out, nil
}

// stringifyKeys rewrites every mapping key to a string. Nested YAML mappings
// can decode as map[any]any, which json.Marshal rejects.
func stringifyKeys(v any) any {
	switch doc := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(doc))
		for k, val := range doc {
			out[fmt.Sprint(k)] = stringifyKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range doc {
			doc[k] = stringifyKeys(val)
		}
		return doc
	case []any:
		for i, val := range doc {
			doc[i] = stringifyKeys(val)
		}
		return doc
	default:
		return v
	}
}
