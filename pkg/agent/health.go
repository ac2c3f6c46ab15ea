// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jllopis/switchboard/pkg/core"
)

// HealthChecker reports whether every configured agent has a provider.
// Results are cached for minInterval.
type HealthChecker struct {
	dir         *Directory
	minInterval time.Duration

	mu         sync.RWMutex
	lastCheck  time.Time
	lastResult core.HealthResult
}

// NewHealthChecker creates a health checker for a directory.
func NewHealthChecker(dir *Directory) *HealthChecker {
	return &HealthChecker{dir: dir, minInterval: 5 * time.Second}
}

// Check implements core.HealthChecker.
func (h *HealthChecker) Check(ctx context.Context) core.HealthResult {
	h.mu.RLock()
	if !h.lastCheck.IsZero() && time.Since(h.lastCheck) < h.minInterval {
		result := h.lastResult
		h.mu.RUnlock()
		return result
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.lastCheck.IsZero() && time.Since(h.lastCheck) < h.minInterval {
		return h.lastResult
	}

	result := core.HealthResult{Component: "agents", LastCheck: time.Now()}
	ids := h.dir.IDs()
	var missing []string
	for _, id := range ids {
		if hd, ok := h.dir.Agent(id); !ok || hd.Provider == nil {
			missing = append(missing, id)
		}
	}
	switch {
	case len(ids) == 0:
		result.Status = core.HealthUnhealthy
		result.Message = "no agents configured"
	case len(missing) > 0:
		result.Status = core.HealthDegraded
		result.Message = fmt.Sprintf("agents without provider: %v", missing)
	default:
		result.Status = core.HealthHealthy
		result.Message = fmt.Sprintf("%d agents ready", len(ids))
	}

	h.lastResult = result
	h.lastCheck = result.LastCheck
	return result
}
