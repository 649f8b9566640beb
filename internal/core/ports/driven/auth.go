package driven

// TokenClaims carries the tenant scope bound to a request
type TokenClaims struct {
	OrganizationID string `json:"organization_id"`
	AgentID        string `json:"agent_id,omitempty"`
	IssuedAt       int64  `json:"issued_at"`
	ExpiresAt      int64  `json:"expires_at"`
}

// AuthAdapter issues and validates the scoping credentials accepted at the
// HTTP boundary: service JWTs and bcrypt-hashed publishable API keys for the
// embedded widget. Tenant/user management itself is an external collaborator.
type AuthAdapter interface {
	// GenerateToken creates a signed JWT from claims
	GenerateToken(claims *TokenClaims) (string, error)

	// ParseToken validates a JWT and extracts claims
	ParseToken(token string) (*TokenClaims, error)

	// HashAPIKey produces a storable hash of a publishable API key
	HashAPIKey(key string) (string, error)

	// VerifyAPIKey checks a presented key against a stored hash
	VerifyAPIKey(key, hash string) bool
}
