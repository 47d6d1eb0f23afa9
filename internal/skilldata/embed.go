// Package skilldata embeds the files that "ckg init" installs into a
// project: a starter ckg.yml and the editor hook that calls "ckg augment".
package skilldata

import "embed"

// TemplatesFS holds the config templates, rooted at "templates/".
//
//go:embed templates/*
var TemplatesFS embed.FS

// HooksFS contains the embedded hook scripts, rooted at "hooks/".
//
//go:embed hooks/*
var HooksFS embed.FS

// ConfigTemplate is the path of the starter config inside TemplatesFS.
const ConfigTemplate = "templates/ckg.yml"
