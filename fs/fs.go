// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

const (
	MigrationsDir       = "migrations"
	EmailTemplatesDir   = "templates/email"
	CommonPasswordsFile = "common-passwords.txt"
)

//go:embed migrations/*.sql templates/email/* common-passwords.txt
var FS embed.FS
