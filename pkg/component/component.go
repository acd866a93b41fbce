// Package component organizes analyzed files into the project tree and rolls
// issue measures up from files to the project.
package component

import (
	"path"
	"slices"
	"strings"
)

// Kind is the level of a component in the tree.
type Kind string

// Component kinds.
const (
	KindProject   Kind = "PROJECT"
	KindDirectory Kind = "DIRECTORY"
	KindFile      Kind = "FILE"
)

// Component is a node of the project tree. Path is "" for the project.
type Component struct {
	Kind     Kind
	Path     string
	Name     string
	Children []*Component
}

// BuildTree groups file paths into directories under a project root. Children
// are sorted by path.
func BuildTree(project string, files []string) *Component {
	root := &Component{Kind: KindProject, Name: project}
	dirs := map[string]*Component{"": root}

	var ensureDir func(dir string) *Component

	ensureDir = func(dir string) *Component {
		if c, ok := dirs[dir]; ok {
			return c
		}

		parent := ensureDir(parentDir(dir))
		c := &Component{Kind: KindDirectory, Path: dir, Name: path.Base(dir)}
		parent.Children = append(parent.Children, c)
		dirs[dir] = c

		return c
	}

	seen := make(map[string]bool, len(files))

	for _, f := range files {
		f = path.Clean(strings.TrimPrefix(f, "/"))
		if seen[f] {
			continue
		}

		seen[f] = true
		parent := ensureDir(parentDir(f))
		parent.Children = append(parent.Children, &Component{Kind: KindFile, Path: f, Name: path.Base(f)})
	}

	sortChildren(root)

	return root
}

func parentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}

	return dir
}

func sortChildren(c *Component) {
	slices.SortFunc(c.Children, func(a, b *Component) int { return strings.Compare(a.Path, b.Path) })

	for _, child := range c.Children {
		sortChildren(child)
	}
}

// Files returns the file components in tree order.
func (c *Component) Files() []*Component {
	var out []*Component

	_ = c.VisitPostOrder(func(n *Component) error {
		if n.Kind == KindFile {
			out = append(out, n)
		}

		return nil
	})

	return out
}

// VisitPostOrder calls fn on every component, children before their parent.
// It stops at the first error.
func (c *Component) VisitPostOrder(fn func(*Component) error) error {
	for _, child := range c.Children {
		err := child.VisitPostOrder(fn)
		if err != nil {
			return err
		}
	}

	return fn(c)
}
