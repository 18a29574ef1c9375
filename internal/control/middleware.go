package control

import "net/http"

// maxBodyBytes bounds every request body. Control payloads are a URL or two.
const maxBodyBytes = 64 << 10

// apiHeaders marks every response as non-sniffable, non-framable JSON.
func apiHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
