package oidc

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

var ErrMissingToken = errors.New("missing id token")

type verifierOptions struct {
	walletClaim string
	now         func() time.Time
	algorithms  []string
}

type VerifierOption func(*verifierOptions)

// WithWalletClaim 設置存放錢包地址的 claim 名稱
func WithWalletClaim(name string) VerifierOption {
	return func(o *verifierOptions) {
		o.walletClaim = name
	}
}

// WithNow 替換驗證到期時間用的時鐘，主要用於測試
func WithNow(now func() time.Time) VerifierOption {
	return func(o *verifierOptions) {
		o.now = now
	}
}

// WithSigningAlgorithms 限制可接受的簽章演算法，預設 RS256
func WithSigningAlgorithms(algs ...string) VerifierOption {
	return func(o *verifierOptions) {
		o.algorithms = algs
	}
}

// Verifier 驗證 bearer ID token 並取出呼叫者身份
type Verifier struct {
	idTokenVerifier *oidc.IDTokenVerifier
	walletClaim     string
}

func buildVerifierOptions(opts []VerifierOption) verifierOptions {
	// 默認選項
	options := verifierOptions{
		walletClaim: "wallet",
		now:         time.Now,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func newVerifier(idTokenVerifier *oidc.IDTokenVerifier, options verifierOptions) *Verifier {
	return &Verifier{
		idTokenVerifier: idTokenVerifier,
		walletClaim:     options.walletClaim,
	}
}

func oidcConfig(clientID string, options verifierOptions) *oidc.Config {
	return &oidc.Config{
		ClientID:             clientID,
		Now:                  options.now,
		SupportedSigningAlgs: options.algorithms,
	}
}

// NewVerifier 透過 discovery 取得簽章金鑰
func NewVerifier(ctx context.Context, issuerURL, clientID string, opts ...VerifierOption) (*Verifier, error) {
	const op = "NewVerifier"
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create provider, err=%w", op, err)
	}
	options := buildVerifierOptions(opts)
	return newVerifier(provider.Verifier(oidcConfig(clientID, options)), options), nil
}

// NewStaticVerifier 使用固定公鑰驗證，不需連線 issuer
func NewStaticVerifier(issuerURL, clientID string, keys []crypto.PublicKey, opts ...VerifierOption) *Verifier {
	options := buildVerifierOptions(opts)
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return newVerifier(oidc.NewVerifier(issuerURL, keySet, oidcConfig(clientID, options)), options)
}

// Verify 驗證 token 的簽章、issuer、audience 與到期時間
func (v *Verifier) Verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	const op = "Verifier.Verify"
	if rawIDToken == "" {
		return nil, ErrMissingToken
	}
	idToken, err := v.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("[%s] Failed to parse ID Token claims, err=%w", op, err)
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("[%s] Failed to parse ID Token claims, err=%w", op, err)
	}
	if wallet, ok := raw[v.walletClaim].(string); ok {
		claims.Wallet = wallet
	}
	return &claims, nil
}
