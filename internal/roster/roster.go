package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Member is one entry of the provisioned squad roster.
type Member struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Squad       int    `json:"squad"`
	GroupMeName string `json:"groupme_name"`
}

// Roster is the static membership lookup. Loaded once at startup and
// read-only afterwards; lookups are case-insensitive exact name matches.
type Roster struct {
	members []Member
	byName  map[string]Member
}

type rosterFile struct {
	Members []Member `json:"members"`
}

func Load(path string) (*Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var file rosterFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}

	r := &Roster{
		members: file.Members,
		byName:  make(map[string]Member, len(file.Members)*2),
	}
	for _, m := range file.Members {
		r.byName[strings.ToLower(m.Name)] = m
		if m.GroupMeName != "" {
			r.byName[strings.ToLower(m.GroupMeName)] = m
		}
	}
	return r, nil
}

func (r *Roster) Len() int {
	return len(r.members)
}

// FindMember returns the member matching the given display name, if any.
func (r *Roster) FindMember(name string) (Member, bool) {
	m, ok := r.byName[strings.ToLower(name)]
	return m, ok
}

func (r *Roster) IsAuthorized(name string) bool {
	_, ok := r.FindMember(name)
	return ok
}

// MemberSquad returns the member's squad number, or 0 when unknown.
func (r *Roster) MemberSquad(name string) int {
	if m, ok := r.FindMember(name); ok {
		return m.Squad
	}
	return 0
}

// MemberRole returns the member's title, or "" when unknown.
func (r *Roster) MemberRole(name string) string {
	if m, ok := r.FindMember(name); ok {
		return m.Title
	}
	return ""
}
