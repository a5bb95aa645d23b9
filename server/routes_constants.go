package server

import "github.com/jrsteele09/minis-web/navigation"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteLogin      = "/login"
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"

	// Sections shown in the menu
	RouteHome       = navigation.RouteHome
	RouteStammdaten = navigation.RouteStammdaten
	RouteEinteilung = navigation.RouteEinteilung

	// Planning
	RouteEinteilungEvents     = "/einteilung/events"
	RouteEinteilungAssign     = "/einteilung/events/{id}/assign"
	RouteEinteilungAutoAssign = "/einteilung/events/{id}/auto-assign"
	RouteEinteilungPDF        = "/einteilung/plan.pdf"

	// User settings
	RouteUserSettings         = "/users/{id}/settings"
	RouteUserSettingsGeneral  = "/users/{id}/settings/general"
	RouteUserSettingsPassword = "/users/{id}/settings/password"
	RouteUserSettingsBan      = "/users/{id}/settings/ban"
	RouteUserSettingsWeekdays = "/users/{id}/settings/weekdays"
	RouteUserSettingsPartners = "/users/{id}/settings/partners"

	RouteHealth = "/healthz"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
	RouteStaticJS  = "/js/{file}"
)
