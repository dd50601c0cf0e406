package bot

import (
	"fmt"
	"strconv"
	"strings"

	"amega-vpn-bot/internal/services"
)

// Callback actions. Static payloads are matched whole; the rest are
// "<action>_<id>" with a single underscore.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCopy    = "copy"

	ActionVPNStatus    = "vpn_status"
	ActionRenew        = "renew_vpn"
	ActionShowPayments = "show_payments"
	ActionManageKeys   = "manage_keys"
	ActionShowStats    = "show_stats"
	ActionListAll      = "list_all_keys"
	ActionListFree     = "list_free_keys"
	ActionListUsed     = "list_used_keys"
	ActionAddKeys      = "add_keys"
	ActionPanelStatus  = "panel_status"
	ActionBackup       = "backup"
	ActionAdminPanel   = "admin_panel"
)

var staticActions = map[string]bool{
	ActionVPNStatus:    true,
	ActionRenew:        true,
	ActionShowPayments: true,
	ActionManageKeys:   true,
	ActionShowStats:    true,
	ActionListAll:      true,
	ActionListFree:     true,
	ActionListUsed:     true,
	ActionAddKeys:      true,
	ActionPanelStatus:  true,
	ActionBackup:       true,
	ActionAdminPanel:   true,
}

var idActions = map[string]bool{
	ActionApprove: true,
	ActionReject:  true,
	ActionCopy:    true,
}

type Callback struct {
	Action string
	ID     uint
}

func CallbackData(action string, id uint) string {
	return action + "_" + strconv.FormatUint(uint64(id), 10)
}

// ParseCallback decodes button payloads. Unknown or malformed payloads
// yield services.ErrMalformedInput.
func ParseCallback(data string) (Callback, error) {
	if staticActions[data] {
		return Callback{Action: data}, nil
	}
	action, raw, ok := strings.Cut(data, "_")
	if !ok || !idActions[action] {
		return Callback{}, fmt.Errorf("%w: callback %q", services.ErrMalformedInput, data)
	}
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return Callback{}, fmt.Errorf("%w: callback %q", services.ErrMalformedInput, data)
	}
	return Callback{Action: action, ID: uint(id)}, nil
}
