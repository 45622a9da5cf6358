// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// Persisted entry names.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyEmail        = "email"
	KeyUsername     = "username"
)

// Keys lists every entry the store owns.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyEmail, KeyUsername}

// Session is a snapshot of the signed-in user's credentials.
type Session struct {
	AccessToken  string
	RefreshToken string
	Email        string
	Username     string
}

// IsAuthenticated is true iff both tokens are present.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// values converts s to jar values.
func (s Session) values() map[string]string {
	return map[string]string{
		KeyAccessToken:  s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
		KeyEmail:        s.Email,
		KeyUsername:     s.Username,
	}
}

func fromValues(v map[string]string) Session {
	return Session{
		AccessToken:  v[KeyAccessToken],
		RefreshToken: v[KeyRefreshToken],
		Email:        v[KeyEmail],
		Username:     v[KeyUsername],
	}
}
