package rest

import (
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
)

// RequestLogger tags every request with a unique identifier and the caller's address,
// then logs its completion. Handlers perform their own, more detailed logging.
func RequestLogger(logger logrus.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqUUID, err := uuid.NewV4()
			if err != nil {
				logger.WithError(err).Error("can't generate a request UUID")
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			// create a request-specific logger
			requestLogger := logger.WithFields(logrus.Fields{
				"reqid":     reqUUID.String(),
				"remote-ip": r.RemoteAddr,
			})

			next.ServeHTTP(w, r)

			requestLogger.Debugf("%s %s", r.Method, r.URL.Path)
		})
	}
}
