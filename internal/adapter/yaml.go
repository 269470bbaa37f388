package adapter

import (
	"gopkg.in/yaml.v3"
)

// YAML defines an interface for YAML operations to enable mocking
//
//go:generate mockgen -source=yaml.go -destination=../mocks/yaml.go -package=mocks -mock_names=YAML=MockYAML
type YAML interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// RealYAML implements YAML using gopkg.in/yaml.v3
type RealYAML struct{}

// NewYAML creates a new real YAML implementation
func NewYAML() YAML {
	return &RealYAML{}
}

func (y *RealYAML) Marshal(v interface{}) ([]byte, error) {
	return yaml.Marshal(v)
}

func (y *RealYAML) Unmarshal(data []byte, v interface{}) error {
	return yaml.Unmarshal(data, v)
}
