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

package task

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/apecloud/nodeops/pkg/controllerutil"
	"github.com/apecloud/nodeops/pkg/metrics"
)

// Executor runs the chain of a RunnableTask.
type Executor interface {
	// Run blocks until every group succeeded, a group failed, or ctx was cancelled between two groups.
	Run(ctx context.Context, task *RunnableTask) error
}

// GroupDoneFunc is called after each group, successful or not.
type GroupDoneFunc func(task *RunnableTask, group *SubTaskGroup, done, total int, err error)

type Options struct {
	Retries int
	Backoff time.Duration
	Timeout time.Duration

	OnGroupDone GroupDoneFunc
}

type executor struct {
	opts   Options
	logger logr.Logger
}

var _ Executor = &executor{}

func NewExecutor(logger logr.Logger, opts Options) Executor {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &executor{opts: opts, logger: logger.WithName("executor")}
}

func (e *executor) Run(ctx context.Context, task *RunnableTask) error {
	total := task.Len()
	done := 0
	logger := e.logger.WithValues("task", task.UUID)
	// a started group always runs to its end, only the gap between groups observes ctx
	groupCtx := detach(ctx)
	return task.Walk(func(g *SubTaskGroup) error {
		if err := ctx.Err(); err != nil {
			logger.Info("run cancelled before subtask group", "group", g.Name)
			return errors.Wrapf(controllerutil.ErrRunCancelled, "before group %s", g.Name)
		}
		start := time.Now()
		logger.Info("running subtask group", "group", g.Name, "type", g.Type, "subtasks", len(g.SubTasks))
		err := e.runGroup(groupCtx, logger, g)
		metrics.SubTaskGroupDuration.WithLabelValues(string(g.Type), metrics.ResultLabel(err)).Observe(time.Since(start).Seconds())
		if err == nil {
			done++
			task.reportProgress(done, total)
		} else {
			logger.Error(err, "subtask group failed", "group", g.Name)
		}
		if e.opts.OnGroupDone != nil {
			e.opts.OnGroupDone(task, g, done, total, err)
		}
		return err
	})
}

func (e *executor) runGroup(ctx context.Context, logger logr.Logger, g *SubTaskGroup) error {
	eg := errgroup.Group{}
	for _, st := range g.SubTasks {
		st := st
		eg.Go(func() error {
			return e.runSubTask(ctx, logger, st)
		})
	}
	return eg.Wait()
}

func (e *executor) runSubTask(ctx context.Context, logger logr.Logger, st *SubTask) error {
	retries := e.opts.Retries
	if st.Retries != nil {
		retries = *st.Retries
	}
	backoff := wait.Backoff{
		Duration: e.opts.Backoff,
		Factor:   2,
		Jitter:   0.1,
		Steps:    retries + 1,
	}
	var err error
	for attempt := 0; ; attempt++ {
		if err = e.attempt(ctx, st); err == nil {
			logger.V(1).Info("subtask succeeded", "subtask", st.String(), "attempt", attempt+1)
			return nil
		}
		if attempt >= retries || !retriable(err) {
			break
		}
		logger.Info("subtask failed, retrying", "subtask", st.String(), "attempt", attempt+1, "error", err.Error())
		metrics.SubTaskRetriesTotal.WithLabelValues(st.Name).Inc()
		time.Sleep(backoff.Step())
	}
	if controllerutil.UnwrapControllerError(err) != nil {
		return errors.Wrapf(err, "subtask %s", st)
	}
	return controllerutil.NewErrorf(controllerutil.ErrorTypeSubtaskFailed, "subtask %s failed: %s", st, err.Error())
}

func (e *executor) attempt(ctx context.Context, st *SubTask) error {
	timeout := st.Timeout
	if timeout == 0 {
		timeout = e.opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return st.Action(ctx)
}

// retriable reports false for errors a retry can not fix.
func retriable(err error) bool {
	return !controllerutil.IsTargetError(err, controllerutil.ErrorTypeFatal) &&
		!controllerutil.IsValidationError(err) &&
		!controllerutil.IsNotFound(err)
}

// detachedContext keeps the values of its parent but never expires.
type detachedContext struct {
	parent context.Context
}

func detach(ctx context.Context) context.Context {
	return detachedContext{parent: ctx}
}

func (detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{} { return nil }
func (detachedContext) Err() error { return nil }
func (d detachedContext) Value(key interface{}) interface{} { return d.parent.Value(key) }
