package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	SubjectID uuid.UUID
	TenantID  uuid.UUID
	Role      enums.ActorRole
	JTI       string
}

// AccessTokenClaims identifies a storefront customer or a tenant merchant.
type AccessTokenClaims struct {
	SubjectID uuid.UUID       `json:"sub_id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	Role      enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
