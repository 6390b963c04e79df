/*
Copyright (C) 2022-2024 ApeCloud Co., Ltd

This file is part of KubeBlocks project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package operations

import (
	"context"
	"sync"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
)

// RunHandle follows one asynchronous run.
type RunHandle struct {
	TaskUUID string

	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	phase   v1alpha1.TaskPhase
	percent int
	err     error
}

func newRunHandle(taskUUID string, cancel context.CancelFunc) *RunHandle {
	return &RunHandle{
		TaskUUID: taskUUID,
		done:     make(chan struct{}),
		cancel:   cancel,
		phase:    v1alpha1.TaskCreatedPhase,
	}
}

// Done is closed once the task record got its terminal phase.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run ends or ctx expires, and returns the run error.
func (h *RunHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error of a finished run, nil while it runs or when it succeeded.
func (h *RunHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Cancel asks the run to stop before its next subtask group.
func (h *RunHandle) Cancel() {
	h.cancel()
}

// Progress returns the live phase and completion percentage.
func (h *RunHandle) Progress() (v1alpha1.TaskPhase, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase, h.percent
}

func (h *RunHandle) setRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phase = v1alpha1.TaskRunningPhase
}

func (h *RunHandle) setProgress(done, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if total > 0 {
		h.percent = done * 100 / total
	}
}

func (h *RunHandle) finish(phase v1alpha1.TaskPhase, err error) {
	h.mu.Lock()
	h.phase = phase
	h.err = err
	if phase == v1alpha1.TaskSucceededPhase {
		h.percent = 100
	}
	h.mu.Unlock()
	h.cancel()
	close(h.done)
}
