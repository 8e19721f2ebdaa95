package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// LoadYAML parses a Host Configuration document. Unknown fields are
// rejected, matching the external wire contract's strict decoding.
func LoadYAML(data []byte) (*HostConfiguration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var hc HostConfiguration
	if err := dec.Decode(&hc); err != nil {
		return nil, fmt.Errorf("failed to parse host configuration: %w", err)
	}
	return &hc, nil
}

// ToYAML serializes a Host Configuration back to YAML; Equal compares
// configurations through it.
func ToYAML(hc *HostConfiguration) ([]byte, error) {
	data, err := yaml.Marshal(hc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal host configuration: %w", err)
	}
	return data, nil
}

// Equal reports whether two Host Configurations are semantically identical,
// by comparing their canonical YAML serialization. The FSM does not use it;
// its no-op resume check compares configurations with go-cmp instead.
func Equal(a, b *HostConfiguration) (bool, error) {
	ay, err := ToYAML(a)
	if err != nil {
		return false, err
	}
	by, err := ToYAML(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ay, by), nil
}
