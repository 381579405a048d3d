// Package layouts is the catalog of named keyboard layouts.
//
// A layout is a YAML (or JSON) document describing either a tree of key
// groups or a set of joysticks. Documents are checked against an embedded
// JSON schema when they are loaded and compiled into core structures by
// Build, with every number allowed to be an expression over settings:
//
//	offset: [0, stagger_ring*key_height]
//	angle: -bank_angle
//
// A handful of layouts are built in; documents in a user directory shadow
// built-in layouts of the same name.
package layouts

import (
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/crypto/blake2b"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// BuiltinSource marks layouts compiled into the binary.
const BuiltinSource = "builtin"

// Layout is a validated layout document.
type Layout struct {
	Name        string
	Description string
	Modality    Modality
	// Source is BuiltinSource or the file the layout was read from.
	Source string
	// Fingerprint is the hex BLAKE2b-256 digest of the document bytes.
	// Strokes are journaled with it so edits to a layout are traceable.
	Fingerprint string

	doc *Document
}

// Document returns the decoded document.
func (l *Layout) Document() *Document {
	return l.doc
}

// Catalog holds layouts by name.
type Catalog struct {
	schema  *jsonschema.Schema
	layouts map[string]*Layout
	log     *slog.Logger
}

// NewCatalog compiles the schema and loads the built-in layouts.
func NewCatalog(logger *slog.Logger) (*Catalog, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{schema: schema, layouts: make(map[string]*Layout), log: logger}

	entries, err := fs.Glob(builtinFS, "builtin/*.yaml")
	if err != nil {
		return nil, err
	}
	for _, name := range entries {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		l, err := c.Parse(data, BuiltinSource)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", name, err)
		}
		c.Add(l)
	}
	return c, nil
}

// Parse validates a document without adding it to the catalog.
func (c *Catalog) Parse(data []byte, source string) (*Layout, error) {
	if err := validateDocument(c.schema, data); err != nil {
		return nil, err
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	sum := blake2b.Sum256(data)
	return &Layout{
		Name:        doc.Name,
		Description: doc.Description,
		Modality:    doc.Modality,
		Source:      source,
		Fingerprint: hex.EncodeToString(sum[:]),
		doc:         doc,
	}, nil
}

// Add stores l, replacing any layout of the same name.
func (c *Catalog) Add(l *Layout) {
	if prev, ok := c.layouts[l.Name]; ok && prev.Source != l.Source {
		c.log.Debug("layout shadowed", "layout", l.Name, "by", l.Source, "was", prev.Source)
	}
	c.layouts[l.Name] = l
}

// LoadDir adds every .yaml, .yml and .json document in dir. A missing
// directory is not an error. Invalid documents are skipped and reported
// together; valid ones are still added.
func (c *Catalog) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read layouts dir: %w", err)
	}

	var errs []error
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		path := filepath.Join(dir, e.Name())
		l, err := c.LoadFile(path)
		if err != nil {
			c.log.Warn("skipping layout", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		c.Add(l)
		n++
	}
	return n, errors.Join(errs...)
}

// LoadFile reads and validates one document.
func (c *Catalog) LoadFile(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	l, err := c.Parse(data, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Get returns the named layout.
func (c *Catalog) Get(name string) (*Layout, error) {
	l, ok := c.layouts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayout, name)
	}
	return l, nil
}

// Names returns the layout names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.layouts))
	for n := range c.layouts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Layouts returns every layout, sorted by name.
func (c *Catalog) Layouts() []*Layout {
	out := make([]*Layout, 0, len(c.layouts))
	for _, n := range c.Names() {
		out = append(out, c.layouts[n])
	}
	return out
}
