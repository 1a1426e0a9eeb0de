// clientinfo.go -- UI summary strings for login results.
package auth

import (
	"fmt"
	"strings"
)

// ClientInfo is the human-facing summary shown by result pages and apps.
type ClientInfo struct {
	Platform string `json:"platform"`
	Title    string `json:"title"`
	Heading  string `json:"heading"`
}

var platformTitles = map[string]string{
	"web":     "Web Authentication Successful",
	"ios":     "iOS Authentication Successful",
	"android": "Android Authentication Successful",
}

var providerNames = map[string]string{
	"google":    "Google",
	"apple":     "Apple",
	"microsoft": "Microsoft",
	"github":    "GitHub",
}

// displayProvider returns the brand spelling of a provider id.
func displayProvider(provider string) string {
	if n, ok := providerNames[provider]; ok {
		return n
	}
	if provider == "" {
		return ""
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

// buildClientInfo summarizes a successful login.
func buildClientInfo(platform, provider, name string) ClientInfo {
	title, ok := platformTitles[platform]
	if !ok {
		title = "Authentication Successful"
	}
	if name == "" {
		name = "User"
	}
	return ClientInfo{
		Platform: platform,
		Title:    title,
		Heading:  fmt.Sprintf("Welcome %s! You've successfully signed in with %s", name, displayProvider(provider)),
	}
}
