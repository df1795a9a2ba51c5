// Package config loads application configuration.
//
// Everything comes from FIELDSERVE_* environment variables with sane
// defaults, validated once at startup. The subscription gate's
// allow-lists additionally live in a YAML file that can be edited
// without a restart; Watch reloads it on change.
package config
