package entities

import (
	"errors"
	"io"
	"net/http"

	JSON "github.com/silvestri/maglia/pkg/json-utilities"
	"github.com/silvestri/maglia/pkg/rest"
)

// IdentityFunc resolves the authenticated actor from a request's context;
// the auth package supplies it at wiring time to avoid a cyclic dependency.
type IdentityFunc func(request *http.Request) (Actor, error)

// RegisterHandlers exposes the same five routes for every registered kind.
func RegisterHandlers(engine *rest.Engine, registry *Registry, identify IdentityFunc, authenticated func(http.Handler) http.Handler) {
	engine.Get("/entities/:kind", listEntities(registry, identify), authenticated)
	engine.Post("/entities/:kind", createEntity(registry, identify), authenticated)
	engine.Get("/entities/:kind/:id", getEntity(registry, identify), authenticated)
	engine.Patch("/entities/:kind/:id", updateEntity(registry, identify), authenticated)
	engine.Delete("/entities/:kind/:id", deleteEntity(registry, identify), authenticated)
}

func listEntities(registry *Registry, identify IdentityFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		ops, actor, resolved := resolve(registry, identify, writer, request)
		if !resolved {
			return
		}

		records, err := ops.list(actor)
		if err != nil {
			RespondError(writer, err)
			return
		}
		JSON.Ok(writer, records)
	}
}

func getEntity(registry *Registry, identify IdentityFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		ops, actor, resolved := resolve(registry, identify, writer, request)
		if !resolved {
			return
		}

		record, err := ops.get(actor, rest.Param(request, "id"))
		if err != nil {
			RespondError(writer, err)
			return
		}
		JSON.Ok(writer, record)
	}
}

func createEntity(registry *Registry, identify IdentityFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		ops, actor, resolved := resolve(registry, identify, writer, request)
		if !resolved {
			return
		}

		payload, err := io.ReadAll(request.Body)
		if err != nil {
			JSON.BadRequest(writer)
			return
		}

		record, err := ops.create(actor, payload)
		if err != nil {
			RespondError(writer, err)
			return
		}
		JSON.Created(writer, record)
	}
}

func updateEntity(registry *Registry, identify IdentityFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		ops, actor, resolved := resolve(registry, identify, writer, request)
		if !resolved {
			return
		}

		payload, err := io.ReadAll(request.Body)
		if err != nil {
			JSON.BadRequest(writer)
			return
		}

		record, err := ops.update(actor, rest.Param(request, "id"), payload)
		if err != nil {
			RespondError(writer, err)
			return
		}
		JSON.Ok(writer, record)
	}
}

func deleteEntity(registry *Registry, identify IdentityFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		ops, actor, resolved := resolve(registry, identify, writer, request)
		if !resolved {
			return
		}

		if err := ops.remove(actor, rest.Param(request, "id")); err != nil {
			RespondError(writer, err)
			return
		}
		JSON.NoContent(writer)
	}
}

// resolve maps the :kind path parameter to its registered operations and identifies the caller.
func resolve(registry *Registry, identify IdentityFunc, writer http.ResponseWriter, request *http.Request) (operations, Actor, bool) {
	ops, found := registry.kinds[rest.Param(request, "kind")]
	if !found {
		JSON.NotFound(writer, "unknown entity kind")
		return nil, Actor{}, false
	}

	actor, err := identify(request)
	if err != nil {
		JSON.Unauthorised(writer)
		return nil, Actor{}, false
	}
	return ops, actor, true
}

// RespondError maps the error taxonomy onto status codes at the HTTP boundary.
func RespondError(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		JSON.NotFound(writer, err.Error())
	case errors.Is(err, ErrConflict):
		JSON.Conflict(writer, err.Error())
	case errors.Is(err, ErrForbidden):
		JSON.Forbidden(writer, err.Error())
	case errors.Is(err, ErrValidation):
		JSON.ValidationError(writer, err)
	case errors.Is(err, ErrUpstream):
		JSON.BadGateway(writer, err)
	default:
		JSON.InternalServerError(writer, err)
	}
}
