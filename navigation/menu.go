// Package navigation derives the visible menu from the signed-in role.
package navigation

import (
	"strings"

	"github.com/jrsteele09/minis-web/api"
)

const (
	KeyHome       = "home"
	KeyStammdaten = "stammdaten"
	KeyEinteilung = "einteilung"

	RouteHome       = "/"
	RouteStammdaten = "/stammdaten"
	RouteEinteilung = "/einteilung"
)

type Item struct {
	Key   string
	Label string
	Route string
}

var (
	home       = Item{Key: KeyHome, Label: "Home", Route: RouteHome}
	stammdaten = Item{Key: KeyStammdaten, Label: "Stammdaten", Route: RouteStammdaten}
	einteilung = Item{Key: KeyEinteilung, Label: "Einteilung", Route: RouteEinteilung}
)

// MenuFor returns the ordered menu for role. Every role outside the
// privileged set gets home only.
func MenuFor(role api.Role) []Item {
	if !role.Privileged() {
		return []Item{home}
	}
	return []Item{home, stammdaten, einteilung}
}

// Allowed reports whether role may open route. Only the master data and
// planning sections are gated.
func Allowed(role api.Role, route string) bool {
	if isUnder(route, RouteStammdaten) || isUnder(route, RouteEinteilung) {
		return role.Privileged()
	}
	return true
}

// Active returns the key of the menu item route belongs to.
func Active(route string) string {
	switch {
	case isUnder(route, RouteStammdaten):
		return KeyStammdaten
	case isUnder(route, RouteEinteilung):
		return KeyEinteilung
	}
	return KeyHome
}

func isUnder(route, prefix string) bool {
	return route == prefix || strings.HasPrefix(route, prefix+"/")
}
