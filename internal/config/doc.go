// Package config implements the configuration store for the Angel monitor.
//
// Configuration starts from LoadBaseline(), is overlaid by an optional YAML file,
// then by ANGELMON_* environment variables, and is validated before use.
// Relative file locations are resolved against DataDir (or LogDir for streams).
package config
