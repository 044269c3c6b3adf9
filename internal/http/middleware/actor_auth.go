package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/juaniAla/turnosColMag/internal/actor"
)

// ActorClaims are the JWT claims the staff tokens carry.
type ActorClaims struct {
	Username  string   `json:"username"`
	OficinaID int64    `json:"oficina_id"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// ActorJWT enforces an HMAC-signed JWT on staff endpoints and puts the
// authenticated actor into the request context.
func ActorJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "staff auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := &ActorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.Username == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := actor.WithActor(r.Context(), actor.Actor{
				Username:  claims.Username,
				OficinaID: claims.OficinaID,
				Roles:     claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
