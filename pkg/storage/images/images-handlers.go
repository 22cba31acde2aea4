package images

import (
	"errors"
	"net/http"

	JSON "github.com/silvestri/maglia/pkg/json-utilities"
	"github.com/silvestri/maglia/pkg/rest"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

func RegisterHandlers(engine *rest.Engine, storage Storage, authenticated func(http.Handler) http.Handler) {
	engine.Post("/upload", uploadImage(storage), authenticated)
}

func uploadImage(storage Storage) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		request.Body = http.MaxBytesReader(writer, request.Body, MaxUploadSize)
		if err := request.ParseMultipartForm(MaxUploadSize); err != nil {
			JSON.BadRequestWithMessage(writer, "malformed multipart form")
			return
		}

		file, _, err := request.FormFile("file")
		if err != nil {
			JSON.BadRequestWithMessage(writer, "missing file field")
			return
		}
		defer func() { _ = file.Close() }()

		url, err := storage.Save(file)
		if errors.Is(err, ErrUnsupportedFormat) {
			JSON.BadRequestWithMessage(writer, err.Error())
			return
		}
		if err != nil {
			storage.Logger.WithError(err).Error("error while storing uploaded image")
			JSON.InternalServerError(writer, err)
			return
		}

		JSON.Created(writer, struct{ Url string }{url})
	}
}
