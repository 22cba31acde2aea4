package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/silvestri/maglia/pkg/entities"
	JSON "github.com/silvestri/maglia/pkg/json-utilities"
	"github.com/silvestri/maglia/pkg/users"
)

type contextKey int

const actorKey contextKey = iota

// accountSource decouples the middleware from the repository, so tests can substitute a stub.
type accountSource interface {
	GetAccountById(id string) (*users.Account, error)
}

// Authenticated verifies the bearer token on protected routes, loads the matching
// account, rejects blocked ones, and stores the actor in the request's context.
func Authenticated(tokens *Tokens, source accountSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			claims, err := tokens.Verify(parseBearer(request))
			if err != nil {
				reportUnauthorised(writer)
				return
			}

			// the token may outlive the account, or predate a block
			account, err := source.GetAccountById(claims.Subject)
			if err != nil {
				reportUnauthorised(writer)
				return
			}
			if account.Blocked {
				JSON.Forbidden(writer, "account is blocked")
				return
			}

			var actor = entities.Actor{
				Id:    account.Id,
				Email: account.Email,
				Name:  account.Name,
				Role:  account.Role,
			}
			next.ServeHTTP(writer, request.WithContext(context.WithValue(request.Context(), actorKey, actor)))
		})
	}
}

// Admin denies access to non-admin actors; must wrap handlers inside Authenticated.
func Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		actor, err := GetActor(request)
		if err != nil {
			reportUnauthorised(writer)
			return
		}
		if !actor.IsAdmin() {
			JSON.Forbidden(writer, "admin role required")
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// parseBearer extracts the raw token from the authorization header, falling back
// to the `token` query parameter for websocket dials, which can't set headers.
func parseBearer(request *http.Request) string {
	var header = request.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return header[7:]
	}
	return request.URL.Query().Get("token")
}

// GetActor returns the authenticated caller's identity.
// An error signals a possibly missing auth middleware on the route.
func GetActor(request *http.Request) (entities.Actor, error) {
	if actor, ok := request.Context().Value(actorKey).(entities.Actor); ok {
		return actor, nil
	}
	return entities.Actor{}, errors.New("missing authenticated actor in request context")
}

func reportUnauthorised(writer http.ResponseWriter) {
	writer.Header().Set("WWW-Authenticate", "Bearer")
	writer.WriteHeader(http.StatusUnauthorized)
}
