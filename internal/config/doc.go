// Package config provides luaspect's configuration.
//
// Settings are resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority (applied by the CLI)
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← LUASPECT_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← luaspect.toml / luaspect.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// # Basic Usage
//
//	cfg, err := config.Load("luaspect.toml")
//	if err != nil {
//		return err
//	}
//
// The file format follows the extension: .toml, or .yaml/.yml. A missing
// file is not an error when the path is empty.
//
// # Live Reload
//
// Watcher re-reads the file whenever it changes and hands the new Config to
// a callback. Invalid edits are reported and otherwise ignored.
package config
