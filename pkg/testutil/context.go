package testutil

import "net/http"

// WithAdminKey sets the header checked by the admin middleware.
func WithAdminKey(req *http.Request, key string) *http.Request {
	req.Header.Set("X-Admin-Key", key)
	return req
}
