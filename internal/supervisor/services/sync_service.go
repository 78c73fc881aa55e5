// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package services

import (
	"context"
	"errors"
	"fmt"
)

// SyncRunner matches *sync.Manager: Run blocks until ctx is done and Wait
// drains triggered runs.
type SyncRunner interface {
	Run(ctx context.Context) error
	Wait()
}

// SyncService runs the sync scheduler as a supervised service.
type SyncService struct {
	runner SyncRunner
	name   string
}

// NewSyncService wraps runner.
func NewSyncService(runner SyncRunner) *SyncService {
	return &SyncService{runner: runner, name: "sync-manager"}
}

// Serve implements suture.Service. On shutdown it waits for triggered
// tenant syncs to finish.
func (s *SyncService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if ctx.Err() != nil {
		s.runner.Wait()
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("scheduler exited")
	}
	return fmt.Errorf("sync manager stopped: %w", err)
}

// String implements fmt.Stringer for suture's logs.
func (s *SyncService) String() string {
	return s.name
}
