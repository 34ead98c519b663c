package session

import (
	"strings"

	"github.com/jrsteele09/campus-session-client/backend"
	"github.com/jrsteele09/campus-session-client/internal/utils"
)

// DefaultRole is assigned when the backend does not report one.
const DefaultRole = "user"

// UserProfile is the logged-in user. Token fields never reach the serialized
// userInfo record; they are stored under their own keys.
type UserProfile struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	Role         string `json:"role"`
	Username     string `json:"username"`
	UserID       int64  `json:"userId"`
	Email        string `json:"email,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	StudentID    string `json:"studentId,omitempty"`
	Major        string `json:"major,omitempty"`
	College      string `json:"college,omitempty"`
}

// complete reports whether every required field is present.
func (p UserProfile) complete() bool {
	return strings.TrimSpace(p.AccessToken) != "" &&
		strings.TrimSpace(p.Username) != "" &&
		strings.TrimSpace(p.Role) != ""
}

// HasRole reports whether the profile carries any of the roles.
func (p UserProfile) HasRole(roles ...string) bool {
	for _, r := range roles {
		if strings.EqualFold(p.Role, r) {
			return true
		}
	}
	return false
}

// ProfilePatch is a partial update; nil fields are left alone.
type ProfilePatch struct {
	AccessToken  *string
	RefreshToken *string
	Role         *string
	Username     *string
	UserID       *int64
	Email        *string
	Avatar       *string
	StudentID    *string
	Major        *string
	College      *string
}

func (p UserProfile) merge(patch ProfilePatch) UserProfile {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	if patch.AccessToken != nil && strings.TrimSpace(*patch.AccessToken) != "" {
		p.AccessToken = *patch.AccessToken
	}
	set(&p.RefreshToken, patch.RefreshToken)
	set(&p.Role, patch.Role)
	set(&p.Username, patch.Username)
	set(&p.Email, patch.Email)
	set(&p.Avatar, patch.Avatar)
	set(&p.StudentID, patch.StudentID)
	set(&p.Major, patch.Major)
	set(&p.College, patch.College)
	if patch.UserID != nil {
		p.UserID = *patch.UserID
	}
	return p
}

func profileFromLogin(r *backend.LoginResult, fallbackUsername string) UserProfile {
	r.Normalize()
	return UserProfile{
		AccessToken:  r.Token,
		RefreshToken: r.RefreshToken,
		Role:         utils.FirstNonEmpty(r.Role, DefaultRole),
		Username:     utils.FirstNonEmpty(r.Username, fallbackUsername),
		UserID:       r.UserID,
		Email:        r.Email,
		Avatar:       r.Avatar,
		StudentID:    r.StudentID,
		Major:        r.Major,
		College:      r.College,
	}
}
