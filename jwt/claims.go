package jwt

import "github.com/golang-jwt/jwt/v5"

// ClaimsVersion is the claim schema version written into every credential.
// Verification rejects any other version.
const ClaimsVersion = 1

// Kind distinguishes access credentials from refresh credentials.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Attributes is the closed set of identity fields carried by a credential.
// All fields are optional.
type Attributes struct {
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"prv,omitempty"`
}

// Claims is the full payload of an issued credential.
type Claims struct {
	Version int  `json:"cv"`
	Kind    Kind `json:"typ"`
	Attributes
	jwt.RegisteredClaims
}
