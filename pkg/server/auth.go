package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const (
	ReasonInvalidJwt    = "invalid:jwt"
	ReasonInvalidKid    = "invalid:kid"
	ReasonInvalidClaims = "invalid:claims"
)

// Extracts the bearer token of the Authorization header into "bearer_token"
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" {
			authError(c, "Authorization header is empty", ReasonInvalidJwt)
			return
		}

		scheme, token, _ := strings.Cut(authorization, " ")
		if scheme != "Bearer" {
			authError(c, "Authorization header scheme must be Bearer", ReasonInvalidJwt)
			return
		}

		c.Set("bearer_token", token)
	}
}

// Verifies the bearer token against the configured issuers and audiences,
// storing the issuer name in "issuer" and the claims in "claims"
func ValidToken(config *models.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := jwt.ParseSigned(c.GetString("bearer_token"), config.Algorithms)
		if err != nil {
			authError(c, "invalid token or algorithm", ReasonInvalidJwt)
			return
		}

		var claims jwt.Claims
		_ = token.UnsafeClaimsWithoutVerification(&claims)

		issuer := config.GetIssuer(claims.Issuer)
		if issuer == nil {
			c.Set("issuer", claims.Issuer)
			authError(c, "invalid token issuer", reasonFromError(jwt.ErrInvalidIssuer))
			return
		}
		c.Set("issuer", issuer.Name)

		if issuer.JWKS == nil {
			authError(c, "issuer keys are not loaded", ReasonInvalidKid)
			return
		}

		var verified map[string]interface{}
		err = token.Claims(jose.JSONWebKeySet(*issuer.JWKS), &verified)
		if err != nil {
			authError(c, err.Error(), ReasonInvalidKid)
			return
		}

		err = claims.ValidateWithLeeway(jwt.Expected{
			Issuer:      issuer.Issuer,
			AnyAudience: jwt.Audience(config.Audience),
			Time:        time.Now(),
		}, time.Minute)
		if err != nil {
			authError(c, err.Error(), reasonFromError(err))
			return
		}

		c.Set("claims", verified)
	}
}

func authError(c *gin.Context, err string, reason string) {
	c.Set("reason", reason)
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:  err,
		Reason: reason,
	})
}

func reasonFromError(err error) string {
	for suffix, target := range map[string]error{
		":aud": jwt.ErrInvalidAudience,
		":iss": jwt.ErrInvalidIssuer,
		":exp": jwt.ErrExpired,
		":nbf": jwt.ErrNotValidYet,
		":iat": jwt.ErrIssuedInTheFuture,
	} {
		if errors.Is(err, target) {
			return ReasonInvalidClaims + suffix
		}
	}
	return ReasonInvalidClaims
}
