package model

// APIKey is a caller credential issued by the gateway operator. The
// secret is the HMAC key for request signatures; it never travels past
// the authorizer.
type APIKey struct {
	ID          string `json:"id"`
	Secret      string `json:"-"`
	Description string `json:"description"`
	Disabled    bool   `json:"disabled"`
}

// Caller is the authenticated identity derived from an API key. It is
// immutable once derived and carries no secret material; its Description
// keys all rate-limit and sponsorship accounting.
type Caller struct {
	KeyID       string
	Description string
}
