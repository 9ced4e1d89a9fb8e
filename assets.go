// Package storefront provides the embedded page templates.
package storefront

import "embed"

// TemplateFS holds the server-rendered pages. In dev mode templates are read
// from disk instead so edits show up without a rebuild.
//
//go:embed all:frontend/templates
var TemplateFS embed.FS
