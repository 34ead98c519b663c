package backend

import (
	"encoding/json"
	"strings"

	"github.com/jrsteele09/campus-session-client/internal/utils"
)

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Captcha   string `json:"captcha"`
	CaptchaID string `json:"captchaId,omitempty"`
}

// UserInfo is the nested user record some backend versions return from /login.
type UserInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	StudentID string `json:"studentId,omitempty"`
	Major     string `json:"major,omitempty"`
	College   string `json:"college,omitempty"`
}

// LoginResult is the data of a successful POST /login. Profile fields arrive
// either flat or nested under "user"; Normalize folds the nested form in.
type LoginResult struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Role         string    `json:"role,omitempty"`
	Username     string    `json:"username,omitempty"`
	UserID       int64     `json:"userId,omitempty"`
	Email        string    `json:"email,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	StudentID    string    `json:"studentId,omitempty"`
	Major        string    `json:"major,omitempty"`
	College      string    `json:"college,omitempty"`
	User         *UserInfo `json:"user,omitempty"`
}

// Normalize copies nested user fields into empty flat fields.
func (r *LoginResult) Normalize() {
	if r.User == nil {
		return
	}
	u := r.User
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&r.Username, u.Username)
	fill(&r.Role, u.Role)
	fill(&r.Email, u.Email)
	fill(&r.Avatar, u.Avatar)
	fill(&r.Avatar, u.AvatarURL)
	fill(&r.StudentID, u.StudentID)
	fill(&r.Major, u.Major)
	fill(&r.College, u.College)
	if r.UserID == 0 {
		r.UserID = u.ID
	}
}

// Captcha is a login challenge. Backends answer GET /captcha with a bare
// string, an {id, code} pair or a {captchaId, imageBase64} image; all three
// decode into this type.
type Captcha struct {
	CaptchaID   string `json:"captchaId,omitempty"`
	CaptchaText string `json:"captchaText,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
}

func (c *Captcha) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*c = Captcha{CaptchaText: text}
		return nil
	}

	var raw struct {
		CaptchaID     string `json:"captchaId"`
		ID            string `json:"id"`
		CaptchaText   string `json:"captchaText"`
		Code          string `json:"code"`
		ImageBase64   string `json:"imageBase64"`
		CaptchaBase64 string `json:"captchaBase64"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Captcha{
		CaptchaID:   utils.FirstNonEmpty(raw.CaptchaID, raw.ID),
		CaptchaText: utils.FirstNonEmpty(raw.CaptchaText, raw.Code),
		ImageBase64: utils.FirstNonEmpty(raw.ImageBase64, raw.CaptchaBase64),
	}
	return nil
}

// Solvable reports whether the challenge can be answered without a human.
func (c Captcha) Solvable() bool {
	return strings.TrimSpace(c.CaptchaText) != ""
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	VerifyCode string `json:"verifyCode"`
}

// RefreshResult is the data of POST /token/refresh.
type RefreshResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
