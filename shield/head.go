package shield

import "net/http"

// HeadToGet rewrites HEAD to GET before routing. chi registers handlers per
// method, so without this a HEAD request to a GET route answers 405; net/http
// drops the response body for HEAD on its own.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
