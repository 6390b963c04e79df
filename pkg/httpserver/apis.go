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

package httpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
	"github.com/apecloud/nodeops/pkg/controllerutil"
	"github.com/apecloud/nodeops/pkg/operations"
	"github.com/apecloud/nodeops/pkg/task"
)

const (
	jsonContentTypeHeader = "application/json"
	version               = "v1.0"
)

type option = func(ctx *fasthttp.RequestCtx)

// Operations is the part of the ops manager the API serves.
type Operations interface {
	ApplyMutation(ctx context.Context, universeUUID string, params *v1alpha1.ResizeNodeParams) (*operations.RunHandle, error)
	PreviewMutation(ctx context.Context, universeUUID string, params *v1alpha1.ResizeNodeParams) ([]*task.SubTaskGroup, error)
	GetTask(ctx context.Context, taskUUID string) (*v1alpha1.TaskRecord, error)
	GetRun(taskUUID string) (*operations.RunHandle, bool)
}

// TaskResponse is returned for an accepted mutation.
type TaskResponse struct {
	TaskUUID string `json:"taskUUID"`
}

// GroupView is one subtask group of a previewed chain.
type GroupView struct {
	Name  string                    `json:"name"`
	Type  v1alpha1.SubTaskGroupType `json:"type"`
	Nodes []string                  `json:"nodes,omitempty"`
}

type api struct {
	ops       Operations
	endpoints []Endpoint
}

func newAPI(ops Operations) *api {
	a := &api{ops: ops}
	a.endpoints = []Endpoint{
		{Method: fasthttp.MethodPost, Version: version, Route: "universes/{universeUUID}/resize_node", Handler: a.onResizeNode},
		{Method: fasthttp.MethodPost, Version: version, Route: "universes/{universeUUID}/resize_node/preview", Handler: a.onPreviewResizeNode},
		{Method: fasthttp.MethodGet, Version: version, Route: "tasks/{taskUUID}", Handler: a.onGetTask},
		{Method: fasthttp.MethodPost, Version: version, Route: "tasks/{taskUUID}/abort", Handler: a.onAbortTask},
	}
	return a
}

func (a *api) Endpoints() []Endpoint {
	return a.endpoints
}

func userValue(reqCtx *fasthttp.RequestCtx, key string) string {
	v, _ := reqCtx.UserValue(key).(string)
	return v
}

func parseResizeNodeParams(reqCtx *fasthttp.RequestCtx) (*v1alpha1.ResizeNodeParams, bool) {
	params := &v1alpha1.ResizeNodeParams{}
	if err := json.Unmarshal(reqCtx.PostBody(), params); err != nil {
		msg := NewErrorResponse("ERR_MALFORMED_REQUEST", fmt.Sprintf("unmarshal HTTP body failed: %v", err))
		respond(reqCtx, withError(fasthttp.StatusBadRequest, msg))
		return nil, false
	}
	return params, true
}

func (a *api) onResizeNode(reqCtx *fasthttp.RequestCtx) {
	params, ok := parseResizeNodeParams(reqCtx)
	if !ok {
		return
	}
	handle, err := a.ops.ApplyMutation(context.Background(), userValue(reqCtx, "universeUUID"), params)
	if err != nil {
		respondOpsError(reqCtx, err)
		return
	}
	body, _ := json.Marshal(TaskResponse{TaskUUID: handle.TaskUUID})
	respond(reqCtx, withJSON(fasthttp.StatusAccepted, body))
}

func (a *api) onPreviewResizeNode(reqCtx *fasthttp.RequestCtx) {
	params, ok := parseResizeNodeParams(reqCtx)
	if !ok {
		return
	}
	groups, err := a.ops.PreviewMutation(context.Background(), userValue(reqCtx, "universeUUID"), params)
	if err != nil {
		respondOpsError(reqCtx, err)
		return
	}
	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, GroupView{Name: g.Name, Type: g.Type, Nodes: g.NodeNames()})
	}
	body, _ := json.Marshal(views)
	respond(reqCtx, withJSON(fasthttp.StatusOK, body))
}

func (a *api) onGetTask(reqCtx *fasthttp.RequestCtx) {
	record, err := a.ops.GetTask(context.Background(), userValue(reqCtx, "taskUUID"))
	if err != nil {
		respondOpsError(reqCtx, err)
		return
	}
	body, _ := json.Marshal(record)
	respond(reqCtx, withJSON(fasthttp.StatusOK, body))
}

func (a *api) onAbortTask(reqCtx *fasthttp.RequestCtx) {
	taskUUID := userValue(reqCtx, "taskUUID")
	handle, ok := a.ops.GetRun(taskUUID)
	if !ok {
		msg := NewErrorResponse("ERR_NOT_FOUND", fmt.Sprintf("task %s is not run by this server", taskUUID))
		respond(reqCtx, withError(fasthttp.StatusNotFound, msg))
		return
	}
	handle.Cancel()
	respond(reqCtx, withEmpty())
}

func metricsHandler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}

// respondOpsError maps the typed errors of the ops manager to status codes.
func respondOpsError(reqCtx *fasthttp.RequestCtx, err error) {
	var (
		statusCode = fasthttp.StatusInternalServerError
		errorCode  = "ERR_OPERATION_FAILED"
	)
	switch {
	case controllerutil.IsValidationError(err):
		statusCode, errorCode = fasthttp.StatusBadRequest, "ERR_VALIDATION"
	case controllerutil.IsConflict(err):
		statusCode, errorCode = fasthttp.StatusConflict, "ERR_CONFLICT"
	case controllerutil.IsNotFound(err):
		statusCode, errorCode = fasthttp.StatusNotFound, "ERR_NOT_FOUND"
	default:
		logger.Error(err, "operation failed")
	}
	respond(reqCtx, withError(statusCode, NewErrorResponse(errorCode, err.Error())))
}

// withJSON overrides the content-type with application/json.
func withJSON(code int, obj []byte) option {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Response.SetStatusCode(code)
		ctx.Response.SetBody(obj)
		ctx.Response.Header.SetContentType(jsonContentTypeHeader)
	}
}

// withError sets error code and jsonify error message.
func withError(code int, resp ErrorResponse) option {
	b, _ := json.Marshal(&resp)
	return withJSON(code, b)
}

func withEmpty() option {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Response.SetBody(nil)
		ctx.Response.SetStatusCode(fasthttp.StatusNoContent)
	}
}

func respond(ctx *fasthttp.RequestCtx, options ...option) {
	for _, option := range options {
		option(ctx)
	}
}
