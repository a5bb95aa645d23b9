package server

import (
	"sort"

	"github.com/jrsteele09/minis-web/api"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// sortUsers orders users by last and first name the way a German reader
// expects ("Öztürk" next to "Ott", not after "Zimmer").
func sortUsers(users []api.User) {
	// a Collator is not safe for concurrent use, so every call gets its own
	c := collate.New(language.German, collate.IgnoreCase)
	sort.SliceStable(users, func(i, j int) bool {
		if cmp := c.CompareString(users[i].Lastname, users[j].Lastname); cmp != 0 {
			return cmp < 0
		}
		return c.CompareString(users[i].Firstname, users[j].Firstname) < 0
	})
}

// userOption is one entry of a user picker.
type userOption struct {
	ID       int
	Name     string
	Selected bool
	Inactive bool
}

func userOptions(users []api.User, selected []int, skip int) []userOption {
	chosen := make(map[int]bool, len(selected))
	for _, id := range selected {
		chosen[id] = true
	}
	sorted := append([]api.User(nil), users...)
	sortUsers(sorted)

	out := make([]userOption, 0, len(sorted))
	for _, u := range sorted {
		if u.ID == skip {
			continue
		}
		out = append(out, userOption{ID: u.ID, Name: u.FullName(), Selected: chosen[u.ID], Inactive: !u.IsActive()})
	}
	return out
}

// userNames maps ids to display names, keeping the order of ids.
func userNames(users []api.User, ids []int) []string {
	byID := make(map[int]string, len(users))
	for _, u := range users {
		byID[u.ID] = u.FullName()
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			out = append(out, name)
		}
	}
	return out
}
