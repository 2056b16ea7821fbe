// Package configs provides the embedded configuration template for vitrina.
//
// The template is embedded at build time so it is available in all
// distributions (source builds and binary releases). `vitrina config
// init` writes it out as a starting point, and the documentation refers
// to it as the canonical example.
//
// Load order (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. YAML file (--config path, or configs/vitrina.yaml)
//  3. Environment variables (VITRINA_*, REDIS_*, DB_*, JWT_SECRET)
package configs

import _ "embed"

// ConfigTemplate is the example service configuration.
//
//go:embed vitrina.yaml
var ConfigTemplate string
