package model

// Credential is a bearer token for the remote API. Values of this type are
// redacted by the logger.
type Credential string

// Identity is the authenticated user behind a credential
type Identity struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}
