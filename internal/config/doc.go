// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the daemon configuration from built-in defaults, an
// optional strict YAML file and NLB_* environment variables, in that order
// of increasing precedence, and hot-reloads the file on change.
package config
