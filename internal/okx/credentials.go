package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"os"
	"time"
)

// Environment variables holding API credentials.
const (
	EnvAPIKey     = "OKX_API_KEY"
	EnvAPISecret  = "OKX_API_SECRET"
	EnvPassphrase = "OKX_API_PASSPHRASE"
)

// Credentials holds an OKX v5 API key set. Market-data endpoints work
// without credentials; signed requests get higher rate limits.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// CredentialsFromEnv reads credentials from the environment. All three
// variables must be set for the result to be usable; otherwise the zero
// value is returned and requests go out unsigned.
func CredentialsFromEnv() Credentials {
	c := Credentials{
		APIKey:     os.Getenv(EnvAPIKey),
		SecretKey:  os.Getenv(EnvAPISecret),
		Passphrase: os.Getenv(EnvPassphrase),
	}
	if c.APIKey == "" || c.SecretKey == "" || c.Passphrase == "" {
		return Credentials{}
	}
	return c
}

// Empty reports whether the credential set is unusable.
func (c Credentials) Empty() bool {
	return c.APIKey == "" || c.SecretKey == "" || c.Passphrase == ""
}

// sign computes the OK-ACCESS-SIGN value: base64(HMAC-SHA256(timestamp +
// method + requestPath + body)) keyed with the secret.
func (c Credentials) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.SecretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Apply stamps the OKX authentication headers onto req. requestPath must
// include the query string. now is injectable for tests.
func (c Credentials) Apply(req *http.Request, requestPath, body string, now time.Time) {
	if c.Empty() {
		return
	}
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("OK-ACCESS-KEY", c.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, req.Method, requestPath, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.Passphrase)
}
