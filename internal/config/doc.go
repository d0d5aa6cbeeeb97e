// Package config loads runtime settings from the environment and pipeline
// definitions from HCL files.
package config
