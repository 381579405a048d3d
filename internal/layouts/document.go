package layouts

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Modality selects how touches become keys.
type Modality string

const (
	// Keys resolves each touch against key regions.
	Keys Modality = "keys"
	// Joysticks maps drags on a few fixed controls to keys.
	Joysticks Modality = "joystick"
)

// Document is the decoded form of a layout file.
type Document struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Modality    Modality      `yaml:"modality" json:"modality"`
	Root        *NodeDoc      `yaml:"root,omitempty" json:"root,omitempty"`
	Joysticks   []JoystickDoc `yaml:"joysticks,omitempty" json:"joysticks,omitempty"`
}

// Expr is a scalar written either as a number or as an expression over
// setting names. It keeps the source text and is compiled at build time.
type Expr string

// UnmarshalYAML accepts any scalar node.
func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number or expression", node.Line)
	}
	*e = Expr(node.Value)
	return nil
}

// Vec is an [x, y] pair of expressions.
type Vec []Expr

// NodeDoc is a group when Children is set and a key group when Keys is set.
type NodeDoc struct {
	Name     string    `yaml:"name" json:"name"`
	Offset   Vec       `yaml:"offset,omitempty" json:"offset,omitempty"`
	Angle    Expr      `yaml:"angle,omitempty" json:"angle,omitempty"`
	Anchor   string    `yaml:"anchor,omitempty" json:"anchor,omitempty"`
	Children []NodeDoc `yaml:"children,omitempty" json:"children,omitempty"`

	Arrange string   `yaml:"arrange,omitempty" json:"arrange,omitempty"`
	KeySize Vec      `yaml:"key_size,omitempty" json:"key_size,omitempty"`
	Gap     Expr     `yaml:"gap,omitempty" json:"gap,omitempty"`
	Keys    []KeyDoc `yaml:"keys,omitempty" json:"keys,omitempty"`
}

// KeyDoc describes one key. Codes is steno notation ("S", "-F", "STK");
// empty codes make a spacer.
type KeyDoc struct {
	ID      string `yaml:"id" json:"id"`
	Label   string `yaml:"label,omitempty" json:"label,omitempty"`
	Codes   string `yaml:"codes,omitempty" json:"codes,omitempty"`
	Size    Vec    `yaml:"size,omitempty" json:"size,omitempty"`
	Offset  Vec    `yaml:"offset,omitempty" json:"offset,omitempty"`
	Col     int    `yaml:"col,omitempty" json:"col,omitempty"`
	Row     int    `yaml:"row,omitempty" json:"row,omitempty"`
	ColSpan int    `yaml:"colspan,omitempty" json:"colspan,omitempty"`
	RowSpan int    `yaml:"rowspan,omitempty" json:"rowspan,omitempty"`
}

// JoystickDoc describes one joystick control.
type JoystickDoc struct {
	Name  string `yaml:"name" json:"name"`
	Shape string `yaml:"shape" json:"shape"`
	Base  Vec    `yaml:"base" json:"base"`

	// Sectors maps compass abbreviations ("n", "se") to keys.
	Sectors map[string]KeyDoc `yaml:"sectors,omitempty" json:"sectors,omitempty"`

	Up       *KeyDoc `yaml:"up,omitempty" json:"up,omitempty"`
	Down     *KeyDoc `yaml:"down,omitempty" json:"down,omitempty"`
	Compound *KeyDoc `yaml:"compound,omitempty" json:"compound,omitempty"`
}

// decodeDocument parses YAML (or JSON, which is YAML) into a Document.
func decodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return &doc, nil
}
