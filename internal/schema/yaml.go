package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

func parseYAML(data []byte, filename string) (Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Schema{}, &LoadError{File: filename, Message: err.Error()}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return Schema{}, &LoadError{File: filename, Message: "empty schema"}
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		roots := []string{}
		for _, n := range root.Content {
			if n.Kind != yaml.ScalarNode {
				return Schema{}, yamlError(filename, n, "root ids must be strings")
			}
			if err := validateYAML(filename, n); err != nil {
				return Schema{}, err
			}
			roots = append(roots, n.Value)
		}
		return Schema{Roots: roots}, nil
	case yaml.MappingNode:
		tree, err := yamlTree(filename, root)
		if err != nil {
			return Schema{}, err
		}
		return Schema{Tree: tree}, nil
	default:
		return Schema{}, yamlError(filename, root, "schema must be a list of ids or a mapping of entries")
	}
}

func yamlTree(filename string, n *yaml.Node) (Tree, error) {
	tree := Tree{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if err := validateYAML(filename, key); err != nil {
			return nil, err
		}
		if seen[key.Value] {
			return nil, yamlError(filename, key, fmt.Sprintf("duplicate entry %q", key.Value))
		}
		seen[key.Value] = true

		var children Tree
		switch {
		case val.Kind == yaml.MappingNode:
			var err error
			if children, err = yamlTree(filename, val); err != nil {
				return nil, err
			}
			if len(children) == 0 {
				children = nil
			}
		case val.Kind == yaml.ScalarNode && val.Tag == "!!null":
			// "home:" with no value is a leaf.
		default:
			return nil, yamlError(filename, val, fmt.Sprintf("entry %q must be a mapping of child entries", key.Value))
		}
		tree = append(tree, Entry{ID: key.Value, Children: children})
	}
	return tree, nil
}

func validateYAML(filename string, n *yaml.Node) error {
	if err := validate(filename, n.Value, noPos); err != nil {
		return yamlError(filename, n, err.(*LoadError).Message)
	}
	return nil
}

func yamlError(filename string, n *yaml.Node, msg string) error {
	return &LoadError{File: filename, Message: fmt.Sprintf("line %d: %s", n.Line, msg)}
}
