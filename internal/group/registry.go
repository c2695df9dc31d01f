// Package group holds the in-process membership registry that stands in
// for the external group-membership system. The sync core only needs the
// membership question answered; everything else about groups lives outside.
package group

import (
	"sort"
	"sync"
)

// Registry maps group ids to member sets.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{members: map[string]map[string]bool{}}
}

// Add puts a user into a group, creating the group if needed.
func (r *Registry) Add(groupID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[groupID]; !ok {
		r.members[groupID] = map[string]bool{}
	}
	r.members[groupID][userID] = true
}

// Remove drops a user from a group.
func (r *Registry) Remove(groupID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.members[groupID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(r.members, groupID)
		}
	}
}

// IsMember reports whether a user belongs to a group.
func (r *Registry) IsMember(groupID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[groupID][userID]
}

// Members returns the sorted member list of a group.
func (r *Registry) Members(groupID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.members[groupID]))
	for id := range r.members[groupID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
