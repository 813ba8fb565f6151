package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
)

// VerifyAuthTokenHandler only calls next when the request carries the given
// token, either as a bearer token, an access_token query parameter or an
// access_token cookie. An empty token disables the check.
func VerifyAuthTokenHandler(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqToken := httpcmn.GetUserTokenFromHTTPRequest(r)

		if subtle.ConstantTimeCompare([]byte(reqToken), []byte(token)) != 1 {
			err := errors.New("invalid auth token").
				WithType(ErrTypeUnauthorized).
				WithTag("path", r.URL.Path)

			logs.WithTag("client_id", r.Header.Get(httpcmn.HeaderPosemeshClientID)).
				WithTag("remote_addr", r.RemoteAddr).
				Debug(err)
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}
