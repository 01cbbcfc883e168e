package auth

// AccessClaims are the claims carried by a verified access token.
// UserID is the opaque identity every listing operation is scoped to.
type AccessClaims struct {
	UserID  string `json:"user_id"`
	Subject string `json:"sub"`
	TokenID string `json:"jti"`
}
