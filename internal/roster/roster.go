// Package roster tracks the attributes of enrolled identities (class,
// section, house) and answers absentee queries against a list of names
// already marked present. The roster is the group-membership side of the
// system; the identity store owns the embeddings.
package roster

import (
	"sort"
	"strings"
	"sync"

	"github.com/facein/facein/internal/face"
)

// Info is the attribute set attached to one identity. Empty fields mean
// unassigned.
type Info struct {
	Class   string `json:"class,omitempty"`
	Section string `json:"section,omitempty"`
	House   string `json:"house,omitempty"`
}

// Member pairs an identity's display name with its attributes.
type Member struct {
	Name string `json:"name"`
	Info
}

// Filter narrows roster queries. Empty fields match everything; non-empty
// fields compare case-insensitively.
type Filter struct {
	Class   string
	Section string
	House   string
}

func (f Filter) matches(info Info) bool {
	if f.Class != "" && !strings.EqualFold(f.Class, info.Class) {
		return false
	}
	if f.Section != "" && !strings.EqualFold(f.Section, info.Section) {
		return false
	}
	if f.House != "" && !strings.EqualFold(f.House, info.House) {
		return false
	}
	return true
}

// Values lists the distinct attribute values present in the roster,
// sorted. Used to populate filter pickers.
type Values struct {
	Classes  []string `json:"classes"`
	Sections []string `json:"sections"`
	Houses   []string `json:"houses"`
}

type member struct {
	displayName string
	info        Info
}

// Roster is an in-memory attribute table keyed by normalized name, safe
// for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	members map[string]member
}

// New creates an empty roster.
func New() *Roster {
	return &Roster{members: make(map[string]member)}
}

// Set assigns attributes to an identity, inserting it if new. The first
// spelling of a name becomes its display form.
func (r *Roster) Set(name string, info Info) {
	key := face.NormalizeName(name)
	if key == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[key]
	if !ok {
		m = member{displayName: name}
	}
	m.info = info
	r.members[key] = m
}

// Get returns the attributes for a name, matching case-insensitively.
func (r *Roster) Get(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[face.NormalizeName(name)]
	return m.info, ok
}

// Remove drops an identity from the roster. Returns whether it existed.
func (r *Roster) Remove(name string) bool {
	key := face.NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[key]; !ok {
		return false
	}
	delete(r.members, key)
	return true
}

// Clear drops every member and returns how many there were.
func (r *Roster) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.members)
	r.members = make(map[string]member)
	return n
}

// Len returns the number of roster members.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns the roster entries matching the filter, sorted by name.
func (r *Roster) Members(f Filter) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		if f.matches(m.info) {
			out = append(out, Member{Name: m.displayName, Info: m.info})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Absentees returns the roster members matching the filter that have no
// entry in present. Present names match case-insensitively, so ledger
// rows written with a different spelling still count.
func (r *Roster) Absentees(present []string, f Filter) []Member {
	seen := make(map[string]struct{}, len(present))
	for _, name := range present {
		seen[face.NormalizeName(name)] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0)
	for key, m := range r.members {
		if !f.matches(m.info) {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		out = append(out, Member{Name: m.displayName, Info: m.info})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FilterValues collects the distinct classes, sections and houses in use.
func (r *Roster) FilterValues() Values {
	r.mu.RLock()
	defer r.mu.RUnlock()

	classes := make(map[string]struct{})
	sections := make(map[string]struct{})
	houses := make(map[string]struct{})
	for _, m := range r.members {
		if m.info.Class != "" {
			classes[m.info.Class] = struct{}{}
		}
		if m.info.Section != "" {
			sections[m.info.Section] = struct{}{}
		}
		if m.info.House != "" {
			houses[m.info.House] = struct{}{}
		}
	}
	return Values{
		Classes:  sortedKeys(classes),
		Sections: sortedKeys(sections),
		Houses:   sortedKeys(houses),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
