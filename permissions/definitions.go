package permissions

// PermissionScope defines the context in which a permission applies
type PermissionScope string

// ScopeEvent permissions apply within a specific event
const ScopeEvent PermissionScope = "event"

// PermissionDefinition describes a single, specific permission
type PermissionDefinition struct {
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Scope       PermissionScope `json:"scope"`
}

// PermissionGroupDefinition groups related permissions
type PermissionGroupDefinition struct {
	Key         string                 `json:"key"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Permissions []PermissionDefinition `json:"permissions"`
}

const (
	PermPhotosView = "event.photos.view"
	PermPhotosTag  = "event.photos.tag"
	PermPhotosRun  = "event.photos.retag"
)

// Event roles. Owners are implicit; registrations carry RoleGuest.
const (
	RoleOwner = "owner"
	RoleGuest = "guest"
)

// DefinedPermissionGroups holds all statically defined permission groups and their permissions
var DefinedPermissionGroups = []PermissionGroupDefinition{
	{
		Key:         "event",
		Name:        "Event Photos",
		Description: "Permissions related to an event's photos and face tags.",
		Permissions: []PermissionDefinition{
			{
				Key:         PermPhotosView,
				Name:        "View Photos",
				Description: "Allows listing an event's photos with their detected faces.",
				Scope:       ScopeEvent,
			},
			{
				Key:         PermPhotosTag,
				Name:        "Tag Photos",
				Description: "Allows running face detection and matching on an event's photos.",
				Scope:       ScopeEvent,
			},
			{
				Key:         PermPhotosRun,
				Name:        "Tag Whole Event",
				Description: "Allows queueing face tagging for every photo of an event.",
				Scope:       ScopeEvent,
			},
		},
	},
}

// RolePermissions lists what each event role may do
var RolePermissions = map[string][]string{
	RoleOwner: {PermPhotosView, PermPhotosTag, PermPhotosRun},
	RoleGuest: {PermPhotosView, PermPhotosTag},
}

// IsValidPermissionKey checks if a given permission key is defined
func IsValidPermissionKey(key string) bool {
	for _, group := range DefinedPermissionGroups {
		for _, perm := range group.Permissions {
			if perm.Key == key {
				return true
			}
		}
	}
	return false
}

// RoleHas reports whether role grants permission key
func RoleHas(role, key string) bool {
	for _, p := range RolePermissions[role] {
		if p == key {
			return true
		}
	}
	return false
}
