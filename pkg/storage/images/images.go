package images

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/silvestri/maglia/pkg/rest"
	"github.com/sirupsen/logrus"
)

// MaxUploadSize bounds a single image upload, in bytes.
const MaxUploadSize = 20 << 20

type Storage struct {
	Logger *logrus.Logger
	Path   string
	Prefix string
}

// New prepares the images store, creating the target directory when missing.
// Prefix is the public URL path under which saved files are served.
func New(logger *logrus.Logger, path string, prefix string) (storage Storage, err error) {
	storage.Logger = logger
	logger.Println("initialising images store")

	// attempt to create an images directory if it doesn't exist
	if err = os.MkdirAll(path, 0750); err != nil {
		return storage, err
	}

	storage.Path = path
	storage.Prefix = prefix
	return storage, nil
}

// Save sniffs the uploaded file's actual contents, rejects anything that isn't
// a recognised image format and writes it under a random name, returning the
// public URL of the stored file. The client supplied filename is never trusted.
func (storage Storage) Save(file multipart.File) (url string, err error) {

	head := make([]byte, 512)
	read, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", err
	}
	head = head[:read]

	var extension string
	switch http.DetectContentType(head) {
	case "image/jpeg":
		extension = ".jpg"
	case "image/png":
		extension = ".png"
	case "image/webp":
		extension = ".webp"
	case "image/gif":
		extension = ".gif"
	default:
		return "", ErrUnsupportedFormat
	}

	filename := rest.MustGetNewUUID() + extension
	target, err := os.Create(filepath.Join(storage.Path, filename))
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err = target.Write(head); err != nil {
		return "", err
	}
	if _, err = io.Copy(target, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s", storage.Prefix, filename), nil
}
