package writer

import "sort"

func pathKey(ns NS, path string) string {
	return string(ns.Char()) + "/" + path
}

// direntSet tracks every dirent added so far, ordered by (namespace, path),
// and supports O(1) duplicate/alias-target lookup via an auxiliary map. The
// original keeps a std::set<Dirent*, comparePath>; a sorted slice plus a
// lookup map is the idiomatic Go equivalent at the scale a single archive
// build operates at.
type direntSet struct {
	byKey   map[string]*Dirent
	sorted  []*Dirent
	dirty   bool
}

func newDirentSet() *direntSet {
	return &direntSet{byKey: make(map[string]*Dirent)}
}

// add inserts d, returning false if (namespace, path) is already present.
func (s *direntSet) add(d *Dirent) bool {
	key := pathKey(d.Namespace, d.Path)
	if _, exists := s.byKey[key]; exists {
		return false
	}
	s.byKey[key] = d
	s.sorted = append(s.sorted, d)
	s.dirty = true
	return true
}

// lookup finds the dirent at (ns, path), if any.
func (s *direntSet) lookup(ns NS, path string) (*Dirent, bool) {
	d, ok := s.byKey[pathKey(ns, path)]
	return d, ok
}

// sortByPath returns all dirents in (namespace, path) order, sorting once
// and caching until the next add.
func (s *direntSet) sortByPath() []*Dirent {
	if s.dirty {
		sort.Slice(s.sorted, func(i, j int) bool {
			a, b := s.sorted[i], s.sorted[j]
			if a.Namespace != b.Namespace {
				return a.Namespace < b.Namespace
			}
			return a.Path < b.Path
		})
		s.dirty = false
	}
	return s.sorted
}

// sortByTitle returns a copy of dirents sorted by (namespace, title),
// stable so ties preserve insertion order per spec's "stable-sort".
func sortByTitle(dirents []*Dirent) []*Dirent {
	out := make([]*Dirent, len(dirents))
	copy(out, dirents)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Title() < b.Title()
	})
	return out
}
