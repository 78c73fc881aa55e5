// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

// Package services adapts the service's long-running components to
// suture.Service:
//
//   - HTTPServerService: the HTTP listener, with graceful shutdown
//   - SyncService: the scheduled sync manager
//   - PrunerService: processed-event marker retention
//
// Each wrapper implements fmt.Stringer so supervisor events name it.
package services
