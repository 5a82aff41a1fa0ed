package scraper

import "errors"

var (
	// ErrUpstreamStatus means the remote endpoint answered with a non-200 status.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	// ErrDecode means the response body was not the JSON shape we expect.
	ErrDecode = errors.New("could not decode upstream payload")
)
