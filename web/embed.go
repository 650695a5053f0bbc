package webassets

import "embed"

// FS contains the embedded console assets from this directory.
//
//go:embed console.html login.html console.js
var FS embed.FS
