// Package appfs embeds the SQL migrations, templates and certificate fonts shipped with the binaries.
package appfs

import "embed"

//go:embed migrations all:templates fonts
var FS embed.FS
