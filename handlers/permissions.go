package handlers

import (
	"net/http"

	"github.com/camden-git/eventfaces/permissions"
)

// ListPermissions serves the statically defined permission groups so a UI
// can explain what owners and guests may do.
func ListPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permissions.DefinedPermissionGroups)
}
