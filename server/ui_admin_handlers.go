package server

import (
	"net/http"

	"github.com/jrsteele09/minis-web/session"
)

type stammdatenRow struct {
	ID        int
	Firstname string
	Lastname  string
	Username  string
	Role      string
	Active    bool
	Incense   bool
}

type StammdatenPageData struct {
	pageData
	Users []stammdatenRow
}

// StammdatenHandler lists all users for the master data section. Inactive
// users stay in the list, marked.
func (s *Server) StammdatenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		users, err := s.api.Users(r.Context(), sess.Token)
		if err != nil {
			s.loadFailed(w, r, err)
			return
		}
		sortUsers(users)

		data := StammdatenPageData{pageData: s.basePage(r, "Stammdaten")}
		for _, u := range users {
			data.Users = append(data.Users, stammdatenRow{
				ID:        u.ID,
				Firstname: u.Firstname,
				Lastname:  u.Lastname,
				Username:  u.Username,
				Role:      u.RoleID.String(),
				Active:    u.IsActive(),
				Incense:   u.Incense == 1,
			})
		}
		s.renderPage(w, r, http.StatusOK, pageStammdaten, data)
	}
}
