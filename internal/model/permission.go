package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionSessionsRead allows viewing any wallet's quiz sessions.
	PermissionSessionsRead Permission = "sessions:read"

	// PermissionSessionsReset allows clearing a wallet's active session and cooldown.
	PermissionSessionsReset Permission = "sessions:reset"

	// PermissionQuestionsRead allows viewing the question set with its answer key.
	PermissionQuestionsRead Permission = "questions:read"

	// PermissionRewardsRead allows viewing issued rewards.
	PermissionRewardsRead Permission = "rewards:read"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionSessionsRead,
	PermissionSessionsReset,
	PermissionQuestionsRead,
	PermissionRewardsRead,
}
