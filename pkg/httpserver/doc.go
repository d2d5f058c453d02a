// Package httpserver runs an http.Handler until its context is cancelled and
// then drains in-flight requests within a bounded shutdown window. It also
// provides liveness and readiness probe handlers.
package httpserver
