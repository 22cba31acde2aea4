package collectibles

import (
	"net/http"

	"github.com/silvestri/maglia/pkg/auth"
	"github.com/silvestri/maglia/pkg/entities"
	JSON "github.com/silvestri/maglia/pkg/json-utilities"
	"github.com/silvestri/maglia/pkg/rest"
)

// RegisterHandlers wires the like toggle; collectible CRUD itself flows
// through the uniform entity routes.
func RegisterHandlers(engine *rest.Engine, store *Store, authenticated func(http.Handler) http.Handler) {
	engine.Put("/collectibles/:collection/:id/like", like(store), authenticated)
	engine.Delete("/collectibles/:collection/:id/like", unlike(store), authenticated)
}

func like(store *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		actor, err := auth.GetActor(request)
		if err != nil {
			JSON.Unauthorised(writer)
			return
		}

		likes, err := store.Like(rest.Param(request, "collection"), rest.Param(request, "id"), actor)
		if err != nil {
			entities.RespondError(writer, err)
			return
		}
		JSON.Ok(writer, struct{ Likes int }{likes})
	}
}

func unlike(store *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		actor, err := auth.GetActor(request)
		if err != nil {
			JSON.Unauthorised(writer)
			return
		}

		likes, err := store.Unlike(rest.Param(request, "collection"), rest.Param(request, "id"), actor)
		if err != nil {
			entities.RespondError(writer, err)
			return
		}
		JSON.Ok(writer, struct{ Likes int }{likes})
	}
}
