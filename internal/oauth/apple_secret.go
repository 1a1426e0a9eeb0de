// apple_secret.go -- Sign in with Apple client secret.
//
// Apple takes no static client secret: each token request carries an ES256
// JWT signed with the team's .p8 key. It is rebuilt on every exchange.
package oauth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

const (
	appleAudience = "https://appleid.apple.com"
	// AppleSecretTTL is the client secret lifetime. Apple allows up to six
	// months; a single exchange needs seconds.
	AppleSecretTTL = 30 * time.Minute
)

// AppleClientSecret builds the client-secret JWT for cfg at time now.
// The private key file is read on every call.
func AppleClientSecret(cfg config.ProviderConfig, now time.Time) (string, error) {
	var missing []string
	if cfg.TeamID == "" {
		missing = append(missing, "team_id")
	}
	if cfg.KeyID == "" {
		missing = append(missing, "key_id")
	}
	if cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if cfg.AuthKeyPath == "" {
		missing = append(missing, "auth_key_path")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("apple client secret: missing %v", missing)
	}

	pemBytes, err := os.ReadFile(cfg.AuthKeyPath)
	if err != nil {
		return "", fmt.Errorf("apple client secret: reading key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return "", fmt.Errorf("apple client secret: parsing key: %w", err)
	}
	if key.Curve.Params().Name != "P-256" {
		return "", errors.New("apple client secret: key is not P-256")
	}

	// MapClaims keeps aud a plain string, which is what Apple documents.
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": cfg.TeamID,
		"sub": cfg.ClientID,
		"aud": appleAudience,
		"iat": now.Unix(),
		"exp": now.Add(AppleSecretTTL).Unix(),
	})
	tok.Header["kid"] = cfg.KeyID

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("apple client secret: signing: %w", err)
	}
	return signed, nil
}
