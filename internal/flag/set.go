package flag

import "slices"

// Set is the collection of flagged entity keys. Adding a key twice has no
// effect. The zero value is an empty set ready to use.
type Set struct {
	members map[string]struct{}
}

// NewSet returns a set holding keys.
func NewSet(keys ...string) Set {
	var s Set
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts key and reports whether it was new.
func (s *Set) Add(key string) bool {
	if s.members == nil {
		s.members = make(map[string]struct{})
	}
	if _, ok := s.members[key]; ok {
		return false
	}
	s.members[key] = struct{}{}
	return true
}

// Merge adds every member of other.
func (s *Set) Merge(other *Set) {
	for k := range other.members {
		s.Add(k)
	}
}

func (s *Set) Contains(key string) bool {
	_, ok := s.members[key]
	return ok
}

func (s *Set) Len() int {
	return len(s.members)
}

// Keys returns the members in sorted order.
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.members))
	for k := range s.members {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Equal reports whether both sets have the same members.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for k := range s.members {
		if !other.Contains(k) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s *Set) Clone() Set {
	var c Set
	c.Merge(s)
	return c
}
