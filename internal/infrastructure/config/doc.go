// Package config loads and validates application configuration.
//
// Configuration comes from three layers, later layers overriding earlier:
//
//  1. Hardcoded defaults (defaultConfig)
//  2. A YAML configuration file
//  3. TASKAI_* environment variables (secrets and deployment overrides)
//
// Validation happens once at load time; a process never starts with an
// invalid configuration.
package config
