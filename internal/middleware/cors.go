package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS builds the browser policy applied around the whole router.
func CORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderGatewayKey, HeaderIdempotencyKey, HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID},
	})
}
