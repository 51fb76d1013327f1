package server

import "net/http"

const relayCookieName = "ledgerd_state"

// relayCookie binds the outbound state value to the browser for the CSRF
// check at callback time. Max-Age tracks the pending record's TTL.
func relayCookie(state string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     relayCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(PendingTTL.Seconds()),
	}
}

// clearRelayCookie expires the binding cookie. Every terminal response of the
// flow, success or failure, carries this.
func clearRelayCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     relayCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
}

// cookieState returns the bound state value from the request, if any.
func cookieState(r *http.Request) string {
	cookie, err := r.Cookie(relayCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
