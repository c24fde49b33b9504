// Package configs provides the embedded configuration template for docchat.
//
// The template is embedded at build time so `docchat config init` works from
// any installation. It documents every section of internal/config with its
// default value commented out; uncomment a line to override it.
//
// Configuration hierarchy (see internal/config Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. .env in the working directory
//  3. User config (~/.config/docchat/config.yaml)
//  4. Project config (.docchat.yaml)
//  5. Environment variables (DOCCHAT_*, OPENAI_*)
package configs

import _ "embed"

// ProjectConfigTemplate is written to .docchat.yaml by `docchat config init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
