// Package server implements the mediadrop HTTP server: the upload
// endpoint that forwards one file per request to the configured media
// provider, the widget page, and the health and metrics routes.
package server
