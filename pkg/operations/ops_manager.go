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
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/class"
	"github.com/apecloud/nodeops/pkg/constant"
	"github.com/apecloud/nodeops/pkg/controller/nodestate"
	"github.com/apecloud/nodeops/pkg/controllerutil"
	"github.com/apecloud/nodeops/pkg/lock"
	"github.com/apecloud/nodeops/pkg/metrics"
	"github.com/apecloud/nodeops/pkg/nodeagent"
	"github.com/apecloud/nodeops/pkg/store"
	"github.com/apecloud/nodeops/pkg/task"
)

type Options struct {
	MaxParallelNodes   int
	HealthCheckTimeout time.Duration

	// Catalogue restricts the instance types a request may ask for, nil accepts any.
	Catalogue *class.Catalogue

	Logger *logr.Logger
}

// OpsManager validates operation requests and drives their runs.
type OpsManager struct {
	OpsMap map[v1alpha1.TaskType]OpsBehaviour

	ctx         context.Context
	store       store.Store
	locker      lock.Locker
	nodeManager nodeagent.NodeManager
	executor    task.Executor
	guard       *Guard
	logger      logr.Logger

	maxParallelNodes   int
	healthCheckTimeout time.Duration

	mu        sync.RWMutex
	catalogue *class.Catalogue
	runs      map[string]*RunHandle
	wg        sync.WaitGroup
}

// NewOpsManager returns a manager whose runs live as long as ctx.
func NewOpsManager(ctx context.Context,
	st store.Store,
	locker lock.Locker,
	nodeManager nodeagent.NodeManager,
	executor task.Executor,
	opts Options) *OpsManager {
	logger := log.Log.WithName("operations")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.MaxParallelNodes < 1 {
		opts.MaxParallelNodes = constant.DefaultMaxParallelNodes
	}
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = constant.DefaultHealthCheckTimeout
	}
	opsMgr := &OpsManager{
		OpsMap:             map[v1alpha1.TaskType]OpsBehaviour{},
		ctx:                ctx,
		store:              st,
		locker:             locker,
		nodeManager:        nodeManager,
		executor:           executor,
		guard:              NewGuard(st),
		logger:             logger,
		maxParallelNodes:   opts.MaxParallelNodes,
		healthCheckTimeout: opts.HealthCheckTimeout,
		catalogue:          opts.Catalogue,
		runs:               map[string]*RunHandle{},
	}
	registerResizeNodeOps(opsMgr)
	return opsMgr
}

// RegisterOps registers the behaviour of a task type.
func (opsMgr *OpsManager) RegisterOps(taskType v1alpha1.TaskType, opsBehaviour OpsBehaviour) {
	opsMgr.OpsMap[taskType] = opsBehaviour
}

// SetCatalogue swaps the instance type catalogue used by later requests.
func (opsMgr *OpsManager) SetCatalogue(catalogue *class.Catalogue) {
	opsMgr.mu.Lock()
	defer opsMgr.mu.Unlock()
	opsMgr.catalogue = catalogue
}

func (opsMgr *OpsManager) Guard() *Guard {
	return opsMgr.guard
}

// ApplyMutation validates and composes a resize synchronously, then runs it in
// the background. An error means nothing durable was written.
func (opsMgr *OpsManager) ApplyMutation(ctx context.Context, universeUUID string, params *v1alpha1.ResizeNodeParams) (*RunHandle, error) {
	if params == nil {
		return nil, controllerutil.NewValidationError(errors.New("request is empty"))
	}
	p := *params
	if p.UniverseUUID == "" {
		p.UniverseUUID = universeUUID
	} else if p.UniverseUUID != universeUUID {
		return nil, controllerutil.NewValidationError(
			fmt.Errorf("request is for universe %s, not %s", p.UniverseUUID, universeUUID))
	}
	return opsMgr.Do(ctx, v1alpha1.ResizeNodeTaskType, &p)
}

// PreviewMutation returns the groups ApplyMutation would run, without running or writing anything.
func (opsMgr *OpsManager) PreviewMutation(ctx context.Context, universeUUID string, params *v1alpha1.ResizeNodeParams) ([]*task.SubTaskGroup, error) {
	if params == nil {
		return nil, controllerutil.NewValidationError(errors.New("request is empty"))
	}
	p := *params
	if p.UniverseUUID == "" {
		p.UniverseUUID = universeUUID
	}
	reqCtx, opsBehaviour, opsRes, err := opsMgr.prepare(ctx, v1alpha1.ResizeNodeTaskType, &p)
	if err != nil {
		return nil, err
	}
	if err = opsBehaviour.OpsHandler.Validate(reqCtx, opsRes); err != nil {
		return nil, err
	}
	return opsBehaviour.OpsHandler.Compose(reqCtx, opsRes)
}

func (opsMgr *OpsManager) prepare(ctx context.Context,
	taskType v1alpha1.TaskType,
	params *v1alpha1.ResizeNodeParams) (RequestCtx, OpsBehaviour, *OpsResource, error) {
	reqCtx := RequestCtx{
		Ctx: ctx,
		Log: opsMgr.logger.WithValues("taskType", taskType, "universe", params.UniverseUUID),
	}
	opsBehaviour, ok := opsMgr.OpsMap[taskType]
	if !ok || opsBehaviour.OpsHandler == nil {
		return reqCtx, opsBehaviour, nil, controllerutil.NewValidationError(fmt.Errorf("task type %s is not supported", taskType))
	}
	universe, err := opsMgr.store.GetUniverse(ctx, params.UniverseUUID)
	if err != nil {
		return reqCtx, opsBehaviour, nil, err
	}
	opsMgr.mu.RLock()
	catalogue := opsMgr.catalogue
	opsMgr.mu.RUnlock()
	opsRes := &OpsResource{
		Universe:         universe,
		Params:           params,
		Catalogue:        catalogue,
		SubTasks:         NewSubTaskFactory(universe.UUID, opsMgr.store, nodestate.NewTable(universe.Nodes), opsMgr.nodeManager, opsMgr.healthCheckTimeout),
		MaxParallelNodes: opsMgr.maxParallelNodes,
	}
	return reqCtx, opsBehaviour, opsRes, nil
}

// Do is the common entry of every operation.
func (opsMgr *OpsManager) Do(ctx context.Context, taskType v1alpha1.TaskType, params *v1alpha1.ResizeNodeParams) (*RunHandle, error) {
	reqCtx, opsBehaviour, opsRes, err := opsMgr.prepare(ctx, taskType, params)
	if err != nil {
		return nil, err
	}
	universe := opsRes.Universe
	customerUUID := params.CustomerUUID
	if customerUUID == "" {
		customerUUID = universe.CustomerUUID
	}

	if opsBehaviour.QueueByTarget {
		conflicting, err := opsMgr.guard.IsConflicting(ctx, customerUUID, universe.UUID)
		if err != nil {
			return nil, err
		}
		if conflicting {
			metrics.ConflictsTotal.Inc()
			return nil, controllerutil.NewConflictError("universe %s is being updated by another task", universe.UUID)
		}
	}
	if err = opsBehaviour.OpsHandler.Validate(reqCtx, opsRes); err != nil {
		return nil, err
	}

	lease, err := opsMgr.locker.TryLock(ctx, universe.UUID)
	if err != nil {
		if controllerutil.IsConflict(err) {
			metrics.ConflictsTotal.Inc()
		}
		return nil, err
	}
	unlock := func() {
		if err := lease.Unlock(context.Background()); err != nil {
			reqCtx.Log.Error(err, "failed to release universe lock")
		}
	}

	groups, err := opsBehaviour.OpsHandler.Compose(reqCtx, opsRes)
	if err != nil {
		unlock()
		return nil, err
	}
	now := time.Now()
	record := &v1alpha1.TaskRecord{
		UUID:         uuid.NewString(),
		CustomerUUID: customerUUID,
		TargetUUID:   universe.UUID,
		TaskType:     taskType,
		Phase:        v1alpha1.TaskCreatedPhase,
		CreateTime:   now,
		UpdateTime:   now,
	}
	if err = opsMgr.store.CreateTaskRecord(ctx, record); err != nil {
		unlock()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(opsMgr.ctx)
	handle := newRunHandle(record.UUID, cancel)
	runnable := task.NewRunnableTask(record.UUID, taskType).
		AddSubTaskGroup(groups...).
		SetProgressFunc(handle.setProgress)

	opsMgr.mu.Lock()
	opsMgr.runs[record.UUID] = handle
	opsMgr.mu.Unlock()

	reqCtx.Log.Info("task created", "task", record.UUID, "groups", runnable.Len())
	opsMgr.wg.Add(1)
	go func() {
		defer opsMgr.wg.Done()
		phase, err := opsMgr.run(runCtx, reqCtx.Log.WithValues("task", record.UUID), opsBehaviour, opsRes, runnable, record, handle)
		unlock()
		handle.finish(phase, err)
	}()
	return handle, nil
}

// run drives a composed task and gives its record a terminal phase exactly once.
// The caller releases the universe lock and then finishes the handle.
func (opsMgr *OpsManager) run(ctx context.Context,
	logger logr.Logger,
	opsBehaviour OpsBehaviour,
	opsRes *OpsResource,
	runnable *task.RunnableTask,
	record *v1alpha1.TaskRecord,
	handle *RunHandle) (v1alpha1.TaskPhase, error) {
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	// bookkeeping writes must land even when the run was cancelled
	bookCtx := context.Background()

	handle.setRunning()
	record.Phase = v1alpha1.TaskRunningPhase
	record.UpdateTime = time.Now()
	if err := opsMgr.store.UpdateTaskRecord(bookCtx, record); err != nil {
		logger.Error(err, "failed to mark task running")
	}

	var err error
	if opsBehaviour.LockUniverse {
		err = opsRes.SubTasks.setUniverseUpdating(bookCtx, true)
	}
	if err == nil {
		err = opsMgr.executor.Run(ctx, runnable)
	}
	if opsBehaviour.LockUniverse {
		if uerr := opsRes.SubTasks.setUniverseUpdating(bookCtx, false); uerr != nil {
			logger.Error(uerr, "failed to clear update-in-progress")
		}
	}

	phase := v1alpha1.TaskSucceededPhase
	switch {
	case errors.Is(err, controllerutil.ErrRunCancelled):
		phase = v1alpha1.TaskAbortedPhase
	case err != nil:
		phase = v1alpha1.TaskFailedPhase
	}
	_, percent := handle.Progress()
	if phase == v1alpha1.TaskSucceededPhase {
		percent = 100
	}
	record.Phase = phase
	record.PercentComplete = percent
	record.UpdateTime = time.Now()
	if err != nil {
		record.Message = err.Error()
	}
	if uerr := opsMgr.store.UpdateTaskRecord(bookCtx, record); uerr != nil {
		logger.Error(uerr, "failed to record terminal phase", "phase", phase)
	}
	metrics.RunsTotal.WithLabelValues(string(record.TaskType), string(phase)).Inc()
	if err != nil {
		logger.Error(err, "task finished", "phase", phase)
	} else {
		logger.Info("task finished", "phase", phase)
	}
	return phase, err
}

// GetTask returns the task record with the live progress of a run of this manager.
func (opsMgr *OpsManager) GetTask(ctx context.Context, taskUUID string) (*v1alpha1.TaskRecord, error) {
	record, err := opsMgr.store.GetTaskRecord(ctx, taskUUID)
	if err != nil {
		return nil, err
	}
	opsMgr.mu.RLock()
	handle, ok := opsMgr.runs[taskUUID]
	opsMgr.mu.RUnlock()
	if ok && !record.Phase.IsTerminal() {
		phase, percent := handle.Progress()
		if !phase.IsTerminal() {
			record.Phase = phase
		}
		record.PercentComplete = percent
	}
	return record, nil
}

// GetRun returns the handle of a run started by this manager.
func (opsMgr *OpsManager) GetRun(taskUUID string) (*RunHandle, bool) {
	opsMgr.mu.RLock()
	defer opsMgr.mu.RUnlock()
	handle, ok := opsMgr.runs[taskUUID]
	return handle, ok
}

// Wait blocks until every started run finished or ctx expires.
func (opsMgr *OpsManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		opsMgr.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
