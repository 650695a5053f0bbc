package session

// UserRecord is the server-provided profile. It is read-only from the
// console's perspective and replaced wholesale on each identity fetch or
// login response.
type UserRecord struct {
	ID        string `json:"_id"`
	FullName  string `json:"fullname"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar"`
	CreatedAt string `json:"createdAt"`
}

// AdminRole is the only role permitted to operate the console.
const AdminRole = "admin"

// IsAdmin reports whether the record carries the admin role.
func (record UserRecord) IsAdmin() bool {
	return record.Role == AdminRole
}

type identityPayload struct {
	User UserRecord `json:"user"`
}

type loginPayload struct {
	LoggedInUser UserRecord `json:"loggedInUser"`
	AccessToken  string     `json:"accessToken"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
