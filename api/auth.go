package api

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"bidvault/adapters/oidc"
	"bidvault/auction"
)

const (
	callerKey         = "caller"
	accessTokenCookie = "access_token"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator 驗證 bearer token 並回傳呼叫者的錢包地址
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auction.Address, error)
}

type JWT struct {
	Wallet string `json:"wallet,omitempty"`
	jwt.RegisteredClaims
}

func ParseAndValidateJWT(tokenString string, key crypto.PublicKey, opts ...jwt.ParserOption) (*JWT, error) {
	const op = "ParseJWT"
	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}

// LoadPublicKey 解析 PEM 格式的 RSA、ECDSA 或 Ed25519 公鑰
func LoadPublicKey(pemBytes []byte) (crypto.PublicKey, error) {
	if key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(pemBytes); err == nil {
		return key, nil
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported public key: %w", err)
	}
	return key, nil
}

// JWTAuthenticator 驗證登入服務簽發的 access token
type JWTAuthenticator struct {
	key     crypto.PublicKey
	options []jwt.ParserOption
}

func NewJWTAuthenticator(key crypto.PublicKey, issuer, audience string) (*JWTAuthenticator, error) {
	if key == nil {
		return nil, errors.New("public key cannot be nil")
	}
	methods, err := signingMethods(key)
	if err != nil {
		return nil, err
	}
	options := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithValidMethods(methods)}
	if issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		options = append(options, jwt.WithAudience(audience))
	}
	return &JWTAuthenticator{key: key, options: options}, nil
}

// signingMethods 只接受與公鑰類型相符的演算法
func signingMethods(key crypto.PublicKey) ([]string, error) {
	switch key.(type) {
	case *rsa.PublicKey:
		return []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}, nil
	case *ecdsa.PublicKey:
		return []string{"ES256", "ES384", "ES512"}, nil
	case ed25519.PublicKey:
		return []string{"EdDSA"}, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", key)
	}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (auction.Address, error) {
	claims, err := ParseAndValidateJWT(token, a.key, a.options...)
	if err != nil {
		return "", err
	}
	address := claims.Wallet
	if address == "" {
		address = claims.Subject
	}
	if address == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return auction.NormalizeAddress(address), nil
}

type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.Claims, error)
}

// OIDCAuthenticator 直接接受身份提供者簽發的 ID token
type OIDCAuthenticator struct {
	verifier IDTokenVerifier
}

func NewOIDCAuthenticator(verifier IDTokenVerifier) (*OIDCAuthenticator, error) {
	if verifier == nil {
		return nil, errors.New("verifier cannot be nil")
	}
	return &OIDCAuthenticator{verifier: verifier}, nil
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, token string) (auction.Address, error) {
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	address := claims.Address()
	if address == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return auction.NormalizeAddress(address), nil
}

// bearerToken 優先讀取 Authorization header，其次為 access_token cookie
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireCaller 驗證失敗時回應 401，成功則把地址放進 gin.Context
func RequireCaller(auth Authenticator, logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With(slog.String("caller", "RequireCaller"))
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "missing access token"})
			return
		}
		address, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.Warn("Fail to authenticate caller", slog.String("path", c.FullPath()), slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "invalid access token"})
			return
		}
		c.Set(callerKey, address)
		c.Next()
	}
}

func callerFrom(c *gin.Context) auction.Address {
	if v, ok := c.Get(callerKey); ok {
		if address, ok := v.(auction.Address); ok {
			return address
		}
	}
	return ""
}
