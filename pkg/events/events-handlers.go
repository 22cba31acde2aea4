package events

import (
	"net/http"

	"github.com/silvestri/maglia/pkg/rest"
)

// RegisterHandlers exposes the notification stream.
// The auth middleware accepts the bearer token through a query parameter as well,
// since browsers can't set headers on websocket dials.
func RegisterHandlers(engine *rest.Engine, hub *Hub, authenticated func(http.Handler) http.Handler) {
	engine.Get("/events", hub.Serve, authenticated)
}
