package web

import "embed"

// FS contains the embedded dashboard page.
//
//go:embed index.html
var FS embed.FS
