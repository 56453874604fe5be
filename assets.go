// Package lcilookup provides embedded assets for production builds.
package lcilookup

import "embed"

// In dev mode (DEV=true), templates and static files are read from disk for hot reloading.

//go:embed all:frontend/static
var StaticFS embed.FS

//go:embed all:frontend/templates
var TemplateFS embed.FS
