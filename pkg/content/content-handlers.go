package content

import (
	"database/sql"
	"errors"
	"net/http"

	JSON "github.com/silvestri/maglia/pkg/json-utilities"
	"github.com/silvestri/maglia/pkg/rest"
)

// RegisterHandlers exposes legal pages to unauthenticated visitors; terms of
// service must be readable before an account exists.
func RegisterHandlers(engine *rest.Engine, connection *sql.DB) {
	engine.Get("/content/:type", getContent(connection))
}

func getContent(connection *sql.DB) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var sc SiteContent
		err := connection.QueryRow(
			"SELECT id, content_type, body, updated FROM site_content WHERE content_type = ?",
			rest.Param(request, "type")).Scan(&sc.Id, &sc.ContentType, &sc.Body, &sc.Updated)
		if errors.Is(err, sql.ErrNoRows) {
			JSON.NotFound(writer, "no such content")
			return
		}
		if err != nil {
			JSON.InternalServerError(writer, err)
			return
		}
		JSON.Ok(writer, &sc)
	}
}
