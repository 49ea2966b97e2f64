// Package config loads, validates, and normalizes the periscope
// configuration file.
//
// Configuration lives in ~/.config/periscope/config.toml (or a project-local
// periscope.toml). Every path field is expanded and absolute after Load, and
// transport tunables such as the torn-read retry bound and the clock
// smoothing factor are surfaced here instead of being hardcoded.
package config
