package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/logger"
)

// ProfileCookie configures the cookie identifying an anonymous shopper.
type ProfileCookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Profile attaches the caller's profile id to the request, minting a new one when the
// request carries none or a malformed one. The cookie is set when minted and re-issued
// on every cart write, so its expiry slides with the stored cart.
func Profile(cookie ProfileCookie, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profileID := ""
			if c, err := r.Cookie(cookie.Name); err == nil {
				if parsed, parseErr := uuid.Parse(c.Value); parseErr == nil {
					profileID = parsed.String()
				}
			}
			minted := profileID == ""
			if minted {
				profileID = uuid.NewString()
			}
			if minted || isWrite(r.Method) {
				http.SetCookie(w, &http.Cookie{
					Name:     cookie.Name,
					Value:    profileID,
					Path:     "/",
					MaxAge:   int(cookie.TTL.Seconds()),
					HttpOnly: true,
					Secure:   cookie.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithProfileID(r.Context(), profileID)
			if logg != nil {
				ctx = logg.WithProfileID(ctx, profileID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
