// Package widget is the client side of mediadrop. It filters candidate
// files, dispatches each accepted file to the upload endpoint on its own
// goroutine, tracks the outcome per file and renders the stored results
// as thumbnails or document links.
//
// The same behaviour backs the browser page served by the server and the
// "mediadrop upload" command.
package widget
