// Package provider adapts external media hosts behind a single upload
// contract. The upload endpoint hands every backend the same inline data URI
// and the same UploadOptions; format and size enforcement happens here, not
// in the HTTP layer.
package provider
