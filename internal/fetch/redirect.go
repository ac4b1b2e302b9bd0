package fetch

import (
	"errors"
	"net/http"
)

// ErrTooManyRedirects is returned when a fetch exceeds the redirect cap.
var ErrTooManyRedirects = errors.New("too many redirects")

// RedirectPolicy returns a CheckRedirect function that stops a redirect
// chain after maxHops hops.
func RedirectPolicy(maxHops int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}
