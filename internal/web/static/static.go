// Package static embeds the HTML forms and API documentation served by the
// web layer.
package static

import "embed"

//go:embed *.html docs
var FS embed.FS
