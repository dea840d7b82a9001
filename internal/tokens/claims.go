package tokens

import "github.com/golang-jwt/jwt/v5"

type AccessClaims struct {
	jwt.RegisteredClaims
}

// RefreshClaims carry a type discriminator so an access token can never
// be replayed against the refresh endpoint.
type RefreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

const refreshType = "refresh"
