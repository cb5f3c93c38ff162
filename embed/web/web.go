package web

import "embed"

// Assets holds the static task board served at "/".
//
//go:embed index.html app.js
var Assets embed.FS
