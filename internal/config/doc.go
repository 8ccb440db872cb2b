// Package config loads barsync configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing, so
// secrets such as provider.api_key and store.postgres.password can stay out
// of the file.
package config
