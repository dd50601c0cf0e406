package admin

import (
	"amega-vpn-bot/internal/services"
)

// Guard checks that an action comes from the configured admin.
type Guard struct {
	AdminID int64
}

func (g Guard) IsAdmin(userID int64) bool {
	return g.AdminID != 0 && userID == g.AdminID
}

// Authorize returns services.ErrUnauthorized for any other identity.
func (g Guard) Authorize(userID int64) error {
	if !g.IsAdmin(userID) {
		return services.ErrUnauthorized
	}
	return nil
}
