package transport

import "strings"

// Navigator is the host application's routing surface. RedirectToLogin is
// called when the session can no longer be refreshed.
type Navigator interface {
	Current() string
	RedirectToLogin()
}

// NopNavigator never redirects.
type NopNavigator struct{}

func (NopNavigator) Current() string  { return "" }
func (NopNavigator) RedirectToLogin() {}

func onLoginPath(current, loginPath string) bool {
	if loginPath == "" {
		return false
	}
	loginPath = strings.TrimRight(loginPath, "/")
	current = strings.TrimRight(current, "/")
	if current == loginPath {
		return true
	}
	return strings.HasPrefix(current, loginPath+"?") || strings.HasPrefix(current, loginPath+"#")
}
