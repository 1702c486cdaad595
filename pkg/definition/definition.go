// Package definition reads and writes journey definition files in YAML or JSON.
package definition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/journeys/pkg/models"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a definition file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for file extensions other than .yaml, .yml and .json.
var ErrUnsupportedFormat = errors.New("unsupported definition format")

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// LoadFile reads a journey definition from a YAML or JSON file.
func LoadFile(path string) (*models.Journey, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}

	return Decode(data, format)
}

// Decode parses a journey definition. YAML documents use the same field names as the JSON API,
// so node configs go through the same typed decoding either way.
func Decode(data []byte, format Format) (*models.Journey, error) {
	if format == FormatYAML {
		var document any

		err := yaml.Unmarshal(data, &document)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML definition: %w", err)
		}

		data, err = json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML definition: %w", err)
		}
	}

	var journey models.Journey

	err := json.Unmarshal(data, &journey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse journey definition: %w", err)
	}

	if journey.Status == "" {
		journey.Status = models.JourneyStatusDraft
	}

	return &journey, nil
}

// Encode renders a journey in the given format, keeping the JSON field order.
func Encode(journey *models.Journey, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(journey, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode journey %s: %w", journey.ID, err)
	}

	if format == FormatJSON {
		return append(data, '\n'), nil
	}

	// JSON is valid YAML; re-emit the node tree in block style.
	var node yaml.Node

	err = yaml.Unmarshal(data, &node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode journey %s: %w", journey.ID, err)
	}

	blockStyle(&node)

	var out bytes.Buffer

	encoder := yaml.NewEncoder(&out)
	encoder.SetIndent(2)

	err = encoder.Encode(&node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode journey %s: %w", journey.ID, err)
	}

	err = encoder.Close()
	if err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// WriteFile writes a journey to path in the format its extension names.
func WriteFile(path string, journey *models.Journey) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	data, err := Encode(journey, format)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func blockStyle(node *yaml.Node) {
	node.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle

	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!str" && needsQuotes(node.Value) {
		node.Style |= yaml.DoubleQuotedStyle
	}

	for _, child := range node.Content {
		blockStyle(child)
	}
}

// needsQuotes reports whether a string scalar would read back as another type when left plain.
func needsQuotes(value string) bool {
	var decoded any

	err := yaml.Unmarshal([]byte(value), &decoded)
	if err != nil {
		return true
	}

	_, isString := decoded.(string)

	return !isString || decoded != value
}
