package catalog

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseJSON loads an action set from JSON and validates it.
func ParseJSON(data []byte) (*ActionSet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var set ActionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse json action set: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// ParseYAML loads an action set from YAML and validates it.
func ParseYAML(data []byte) (*ActionSet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var set ActionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse yaml action set: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// MarshalJSON serializes an action set to JSON. Use pretty for indented output.
func MarshalJSON(set *ActionSet, pretty bool) ([]byte, error) {
	if set == nil {
		return nil, fmt.Errorf("action set is nil")
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if pretty {
		return json.MarshalIndent(set, "", "  ")
	}
	return json.Marshal(set)
}

// MarshalYAML serializes an action set to YAML.
func MarshalYAML(set *ActionSet) ([]byte, error) {
	if set == nil {
		return nil, fmt.Errorf("action set is nil")
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(set)
}
