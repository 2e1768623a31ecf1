package resolver

import (
	"sort"

	"github.com/goccy/go-yaml"
)

// Kind discriminates Node variants.
type Kind int

const (
	// ScalarKind nodes hold a string, number, bool or nil.
	ScalarKind Kind = iota
	// MappingKind nodes hold ordered key/value pairs.
	MappingKind
	// SequenceKind nodes hold ordered items.
	SequenceKind
)

// Node is one node of a document tree. Only the fields of its Kind are set.
type Node struct {
	Kind   Kind
	Scalar interface{}
	Pairs  []Pair
	Items  []Node
}

// Pair is one mapping entry. Keys are nodes too.
type Pair struct {
	Key   Node
	Value Node
}

// Scalar returns a scalar node.
func Scalar(v interface{}) Node {
	return Node{Kind: ScalarKind, Scalar: v}
}

// Mapping returns a mapping node.
func Mapping(pairs ...Pair) Node {
	return Node{Kind: MappingKind, Pairs: pairs}
}

// Sequence returns a sequence node.
func Sequence(items ...Node) Node {
	return Node{Kind: SequenceKind, Items: items}
}

// FromValue converts a decoded YAML value into a tree. Ordered maps keep
// their order; plain maps are ordered by key.
func FromValue(v interface{}) Node {
	switch typed := v.(type) {
	case yaml.MapSlice:
		pairs := make([]Pair, 0, len(typed))
		for _, item := range typed {
			pairs = append(pairs, Pair{
				Key:   FromValue(item.Key),
				Value: FromValue(item.Value),
			})
		}

		return Mapping(pairs...)
	case map[string]interface{}:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		pairs := make([]Pair, 0, len(typed))
		for _, key := range keys {
			pairs = append(pairs, Pair{
				Key:   Scalar(key),
				Value: FromValue(typed[key]),
			})
		}

		return Mapping(pairs...)
	case []interface{}:
		items := make([]Node, 0, len(typed))
		for _, item := range typed {
			items = append(items, FromValue(item))
		}

		return Sequence(items...)
	default:
		return Scalar(v)
	}
}

// Interface converts the tree back into values the YAML encoder accepts.
func (n Node) Interface() interface{} {
	switch n.Kind {
	case MappingKind:
		ms := make(yaml.MapSlice, 0, len(n.Pairs))
		for _, p := range n.Pairs {
			ms = append(ms, yaml.MapItem{
				Key:   p.Key.Interface(),
				Value: p.Value.Interface(),
			})
		}

		return ms
	case SequenceKind:
		items := make([]interface{}, 0, len(n.Items))
		for _, item := range n.Items {
			items = append(items, item.Interface())
		}

		return items
	default:
		return n.Scalar
	}
}
