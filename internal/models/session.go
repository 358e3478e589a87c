package models

// SessionUser is the authenticated principal. A nil *SessionUser means signed out.
type SessionUser struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	Picture       *string `json:"picture,omitempty"`
	Authenticated bool    `json:"authenticated"`
}

// SessionResponse is the payload of GET /api/auth/user. Only Authenticated is
// guaranteed to be present.
type SessionResponse struct {
	Authenticated bool    `json:"authenticated"`
	ID            string  `json:"id,omitempty"`
	Email         string  `json:"email,omitempty"`
	Name          string  `json:"name,omitempty"`
	Picture       *string `json:"picture,omitempty"`
}

// User converts the response into a SessionUser, or nil unless the response
// is authenticated and carries an id.
func (r *SessionResponse) User() *SessionUser {
	if r == nil || !r.Authenticated || r.ID == "" {
		return nil
	}
	return &SessionUser{
		ID:            r.ID,
		Email:         r.Email,
		Name:          r.Name,
		Picture:       r.Picture,
		Authenticated: true,
	}
}

// AuthStatus is the payload of GET /api/auth/status.
type AuthStatus struct {
	Authenticated bool    `json:"authenticated"`
	Name          string  `json:"name,omitempty"`
	Picture       *string `json:"picture,omitempty"`
}
