package workspace

import (
	"os"

	"gopkg.in/yaml.v3"
)

// loadYAMLWithComments loads a YAML file preserving the AST structure including comments
func loadYAMLWithComments(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// saveYAMLWithComments writes a YAML node back to file, preserving comments
func saveYAMLWithComments(path string, node *yaml.Node) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// rootDocument returns the document node's content, creating an empty mapping
// for empty documents
func rootDocument(node *yaml.Node) *yaml.Node {
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.MappingNode})
		}
		return node.Content[0]
	}
	if node.Kind == 0 {
		node.Kind = yaml.MappingNode
	}
	return node
}

// findMapKey finds a key in a YAML mapping node and returns its value node
func findMapKey(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// setMapKey replaces the value of a key, adding the key if it is missing.
// Comments attached to the old value are carried over.
func setMapKey(node *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			old := node.Content[i+1]
			value.HeadComment = old.HeadComment
			value.LineComment = old.LineComment
			value.FootComment = old.FootComment
			node.Content[i+1] = value
			return
		}
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		value,
	)
}

// ensureSequence returns the sequence under key, creating it if needed
func ensureSequence(node *yaml.Node, key string) *yaml.Node {
	seq := findMapKey(node, key)
	if seq != nil && seq.Kind == yaml.SequenceNode {
		return seq
	}
	seq = &yaml.Node{Kind: yaml.SequenceNode}
	setMapKey(node, key, seq)
	return seq
}

// itemMatches reports whether a mapping item has all the given field values
func itemMatches(item *yaml.Node, fields map[string]string) bool {
	if item.Kind != yaml.MappingNode {
		return false
	}
	for field, value := range fields {
		v := findMapKey(item, field)
		if v == nil || v.Value != value {
			return false
		}
	}
	return true
}

// removeFromSequence removes every item whose fields match. Returns the number removed.
func removeFromSequence(seq *yaml.Node, fields map[string]string) int {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return 0
	}
	kept := seq.Content[:0]
	removed := 0
	for _, item := range seq.Content {
		if itemMatches(item, fields) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	seq.Content = kept
	return removed
}

// sequenceContains checks if a sequence contains an item with the given field values
func sequenceContains(seq *yaml.Node, fields map[string]string) bool {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return false
	}
	for _, item := range seq.Content {
		if itemMatches(item, fields) {
			return true
		}
	}
	return false
}

// flowMapping builds a one-line mapping node such as {host: h1, component: zk}
func flowMapping(pairs ...string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
	for i := 0; i+1 < len(pairs); i += 2 {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: pairs[i]},
			&yaml.Node{Kind: yaml.ScalarNode, Value: pairs[i+1]},
		)
	}
	return node
}

// stringSequence builds a flow sequence of scalars
func stringSequence(values []string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range values {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v})
	}
	return node
}
