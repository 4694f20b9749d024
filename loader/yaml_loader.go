package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/errs"
	"gopkg.in/yaml.v3"
)

// LoadYAML reads a declaration tree from a YAML file. Unknown keys are
// rejected so that a typo such as `not_nul` fails loudly instead of being
// silently ignored.
func LoadYAML(filename string) (definition.Tree, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return definition.Tree{}, errs.Wrap(errs.ErrKindInvalidInput, "reading schema file", err)
	}
	tree, err := ParseYAML(data)
	if err != nil {
		return definition.Tree{}, fmt.Errorf("%s: %w", filename, err)
	}
	return tree, nil
}

// ParseYAML decodes a declaration tree from raw YAML.
func ParseYAML(data []byte) (definition.Tree, error) {
	var tree definition.Tree
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&tree); err != nil && !errors.Is(err, io.EOF) {
		return definition.Tree{}, errs.Wrap(errs.ErrKindDeclaration, "unmarshalling YAML", err)
	}
	return tree, nil
}

// WriteYAML serializes tree, e.g. to snapshot what a struct scan produced.
func WriteYAML(w io.Writer, tree definition.Tree) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}
