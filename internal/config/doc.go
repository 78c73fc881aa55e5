// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

// Package config loads Staysync configuration with Koanf v2.
//
// Sources are layered, later layers overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. An optional YAML file (CONFIG_PATH, or config.yaml / /etc/staysync/config.yaml)
//  3. Environment variables, mapped explicitly by envTransformFunc
//
// Only environment variables listed in envTransformFunc are read; anything
// else in the environment is ignored. Comma-separated values are expanded
// into slices for the keys in sliceConfigPaths.
//
// Example YAML:
//
//	remote:
//	  base_url: https://api.hostaway.com/v1/
//	  requests_per_window: 15
//	  window: 10s
//	sync:
//	  interval: 6h
//	database:
//	  driver: postgres
//	  url: postgres://staysync:secret@db:5432/staysync?sslmode=disable
//	webhook:
//	  base_url: https://sync.example.com
//	  dedup_backend: badger
package config
