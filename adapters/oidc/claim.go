// 參考https://auth0.com/docs/get-started/apis/scopes/openid-connect-scopes
package oidc

type OpenID struct {
	Sub string `json:"sub"`
	Iss string `json:"iss"`
	Exp int64  `json:"exp"`
	Iat int64  `json:"iat"`
}

type Email struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Claims ID token 中與出價者身份相關的欄位
type Claims struct {
	OpenID
	Email

	// Wallet 由 walletClaim 指定的 claim 取出，預設為 "wallet"
	Wallet string `json:"-"`
}

// Address 拍賣中使用的參與者地址，沒有錢包 claim 時退回 sub
func (c *Claims) Address() string {
	if c.Wallet != "" {
		return c.Wallet
	}
	return c.Sub
}
