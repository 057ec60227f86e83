package web

import (
	"embed"
)

// staticFiles holds the embedded UI (index.html, app.js).
//
//go:embed static/*
var staticFiles embed.FS
