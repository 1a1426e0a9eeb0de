// userinfo.go -- Userinfo endpoint client and lenient claim types.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// maxUserInfoBytes bounds the userinfo body read into memory.
const maxUserInfoBytes = 1 << 20

// fetchUserInfo GETs endpoint with accessToken as a bearer and decodes the JSON body into out.
func fetchUserInfo(ctx context.Context, client *http.Client, endpoint, accessToken string, out any) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("userinfo: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("userinfo: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		return fmt.Errorf("userinfo: status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(out); err != nil {
		return fmt.Errorf("userinfo: decoding response: %w", err)
	}
	return nil
}

// flexBool accepts JSON booleans and the strings "true"/"false".
// Apple sends email_verified and is_private_email either way.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	switch string(data) {
	case "true":
		*b = true
	case "false", "", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q", data)
	}
	return nil
}
