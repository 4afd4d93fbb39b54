package models

// UserSummary is the display subset of a directory user attached to
// conversations and notifications.
type UserSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Username       string `json:"username,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	IsVerified     bool   `json:"is_verified"`
	Role           string `json:"role,omitempty"`
}

// DisplayName prefers the full name and falls back to the username.
func (u UserSummary) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return "Someone"
}
