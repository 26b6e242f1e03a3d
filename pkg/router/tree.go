package router

import "strings"

// Node is either a *Procedure leaf or a nested Routes sub-tree.
type Node interface {
	isNode()
}

// Routes is a named sub-tree of the router: a mapping from segment name
// to procedure or nested Routes.
type Routes map[string]Node

func (Routes) isNode() {}

// SplitPath splits a dot-separated procedure path into segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Resolve walks the tree by successive name lookups. Any missing
// segment, empty path, or non-leaf terminal resolves to not found.
func Resolve(root Routes, path []string) (*Procedure, bool) {
	if len(path) == 0 {
		return nil, false
	}
	current := root
	for i, segment := range path {
		node, ok := current[segment]
		if !ok {
			return nil, false
		}
		switch n := node.(type) {
		case *Procedure:
			if i != len(path)-1 {
				return nil, false
			}
			return n, true
		case Routes:
			current = n
		default:
			return nil, false
		}
	}
	return nil, false
}
