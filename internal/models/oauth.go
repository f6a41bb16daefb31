package models

import "time"

// OAuthState is a state of the authorization-code flow.
type OAuthState string

const (
	OAuthIdle                   OAuthState = "idle"
	OAuthAuthorizationRequested OAuthState = "authorization_requested"
	OAuthCallbackPending        OAuthState = "callback_pending"
	OAuthValidated              OAuthState = "validated"
	OAuthExchanging             OAuthState = "exchanging"
	OAuthConnected              OAuthState = "connected"
	OAuthFailed                 OAuthState = "failed"
)

// IsTerminal reports whether the flow attempt has finished.
func (s OAuthState) IsTerminal() bool {
	return s == OAuthConnected || s == OAuthFailed
}

// OAuthSession is the single live authorization attempt.
type OAuthSession struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenResponse is the result of exchanging an authorization code.
type TokenResponse struct {
	AccessToken      string `json:"access_token,omitempty"`
	OpenID           string `json:"open_id,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	Scope            string `json:"scope,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Valid reports whether the response can be persisted. A response is rejected
// when it carries an error or lacks both the access token and the open ID.
func (t *TokenResponse) Valid() bool {
	if t == nil || t.Error != "" {
		return false
	}
	return t.AccessToken != "" || t.OpenID != ""
}

// ErrorMessage returns the provider's description, falling back to the code.
func (t *TokenResponse) ErrorMessage() string {
	if t.ErrorDescription != "" {
		return t.ErrorDescription
	}
	return t.Error
}
