// Package config loads and validates YAML configuration for the monitor and
// pushgate binaries.
//
// Config files support ${VAR} environment variable expansion, so secrets like
// database passwords can stay out of the file itself.
package config
