package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
)

const testIssuer = "http://127.0.0.1:3000"

var rsaKey *rsa.PrivateKey
var jwks *jose.JSONWebKeySet

func init() {
	gin.SetMode(gin.TestMode)

	rsaKey, _ = rsa.GenerateKey(rand.Reader, 2048)
	jwks = &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:   &rsaKey.PublicKey,
				KeyID: "someKeyID",
				Use:   "sig",
			},
		},
	}
}

func signWith(alg jose.SignatureAlgorithm, key any, kid string, claims map[string]interface{}) string {
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	signer, _ := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	token, _ := jwt.Signed(signer).Claims(claims).Serialize()
	return token
}

func sign(claims map[string]interface{}) string {
	return signWith(jose.RS256, rsaKey, "someKeyID", claims)
}

func testConfiguration() *models.Configuration {
	return &models.Configuration{
		Policy:   models.DefaultPolicy,
		Audience: models.StringList{testIssuer},
		Issuers: map[string]*models.Issuer{
			"mock": {
				Name:   "mock",
				Issuer: testIssuer,
				JWKS:   &models.JWKS{Keys: jwks.Keys},
			},
			"unloaded": {
				Name:   "unloaded",
				Issuer: "http://127.0.0.1:4000",
			},
		},
		Algorithms: []jose.SignatureAlgorithm{"RS256"},
	}
}

func TestValidToken(t *testing.T) {
	cfg := testConfiguration()
	valid := map[string]interface{}{"iss": testIssuer, "aud": testIssuer, "valid": true}

	cases := map[string]struct {
		token  string
		code   int
		err    string
		reason string
	}{
		"valid": {
			code: 200,
			token: sign(map[string]interface{}{
				"iss":   testIssuer,
				"aud":   testIssuer,
				"exp":   time.Now().Add(time.Minute).Unix(),
				"nbf":   time.Now().Add(-2 * time.Minute).Unix(),
				"valid": true,
			}),
		},
		"wrong audience": {
			code:   401,
			token:  sign(map[string]interface{}{"iss": testIssuer, "aud": "wrong-audience"}),
			err:    "go-jose/go-jose/jwt: validation failed, invalid audience claim (aud)",
			reason: "invalid:claims:aud",
		},
		"unsupported issuer": {
			code:   401,
			token:  sign(map[string]interface{}{"iss": "unsupported-issuer", "aud": testIssuer}),
			err:    "invalid token issuer",
			reason: "invalid:claims:iss",
		},
		"issuer keys not loaded": {
			code:   401,
			token:  sign(map[string]interface{}{"iss": "http://127.0.0.1:4000", "aud": testIssuer}),
			err:    "issuer keys are not loaded",
			reason: "invalid:kid",
		},
		"not a jwt": {
			code:   401,
			token:  "aaa",
			err:    "invalid token or algorithm",
			reason: "invalid:jwt",
		},
		"empty segments": {
			code:   401,
			token:  "e30K.e30K.aaaa",
			err:    "invalid token or algorithm",
			reason: "invalid:jwt",
		},
		"expired": {
			code: 401,
			token: sign(map[string]interface{}{
				"iss": testIssuer,
				"aud": testIssuer,
				"exp": time.Now().Add(-time.Minute).Unix(),
			}),
			err:    "go-jose/go-jose/jwt: validation failed, token is expired (exp)",
			reason: "invalid:claims:exp",
		},
		"not valid yet": {
			code: 401,
			token: sign(map[string]interface{}{
				"iss": testIssuer,
				"aud": testIssuer,
				"nbf": time.Now().Add(2 * time.Minute).Unix(),
			}),
			err:    "go-jose/go-jose/jwt: validation failed, token not valid yet (nbf)",
			reason: "invalid:claims:nbf",
		},
		"issued in the future": {
			code: 401,
			token: sign(map[string]interface{}{
				"iss": testIssuer,
				"aud": testIssuer,
				"iat": time.Now().Add(2 * time.Minute).Unix(),
			}),
			err:    "go-jose/go-jose/jwt: validation field, token issued in the future (iat)",
			reason: "invalid:claims:iat",
		},
		"wrong algorithm": {
			code:   401,
			token:  signWith(jose.HS256, []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), "", valid),
			err:    "invalid token or algorithm",
			reason: "invalid:jwt",
		},
		"wrong kid": {
			code:   401,
			token:  signWith(jose.RS256, rsaKey, "unknown", valid),
			err:    "go-jose/go-jose: JWK with matching kid not found in JWK Set",
			reason: "invalid:kid",
		},
	}

	g := gin.New()
	g.Use(BearerToken())
	g.Use(ValidToken(cfg))
	g.GET("/", func(c *gin.Context) {
		assert.Equal(t, "mock", c.GetString("issuer"))
		assert.Equal(t, true, c.GetStringMap("claims")["valid"])

		c.JSON(200, gin.H{"ezanswer": true})
	})

	for id, c := range cases {
		t.Run(id, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/", nil)
			w := httptest.NewRecorder()
			req.Header.Set("Authorization", "Bearer "+c.token)
			g.ServeHTTP(w, req)
			assert.Equal(t, c.code, w.Code)

			var body models.ErrorResponse
			err := json.Unmarshal(w.Body.Bytes(), &body)
			assert.NoError(t, err)

			if c.err != "" {
				assert.Equal(t, c.err, body.Error)
				assert.Equal(t, c.reason, body.Reason)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		status int
		body   string
	}{
		"bearer": {
			header: "Bearer token",
			status: 200,
			body:   `"token"`,
		},
		"basic": {
			header: "Basic token",
			status: 401,
			body:   `{"error":"Authorization header scheme must be Bearer","reason":"invalid:jwt"}`,
		},
		"empty": {
			header: "",
			status: 401,
			body:   `{"error":"Authorization header is empty","reason":"invalid:jwt"}`,
		},
	}

	g := gin.New()
	g.Use(BearerToken())
	g.GET("/", func(c *gin.Context) {
		c.JSON(200, c.GetString("bearer_token"))
	})

	for id, c := range cases {
		t.Run(id, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/", nil)
			w := httptest.NewRecorder()
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			g.ServeHTTP(w, req)
			assert.Equal(t, c.status, w.Code)
			assert.Equal(t, c.body, w.Body.String())
		})
	}
}
