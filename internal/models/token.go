package models

import "time"

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	TokenType             string    `json:"token_type"`
	ExpiresIn             int       `json:"expires_in"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// Token Refresh Request
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LoginResult bundles the issued tokens with the authenticated user.
type LoginResult struct {
	TokenPair
	User *User `json:"user"`
}
