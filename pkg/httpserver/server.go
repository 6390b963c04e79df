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
	"fmt"
	"io"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// Server is the admin API server of the orchestrator.
type Server interface {
	io.Closer
	Router() fasthttp.RequestHandler
	StartNonBlocking() error
}

type server struct {
	config  Config
	api     *api
	servers []*fasthttp.Server
}

// NewServer returns a new HTTP server serving ops.
func NewServer(config Config, ops Operations) Server {
	return &server{
		api:    newAPI(ops),
		config: config,
	}
}

// StartNonBlocking starts a new server in a goroutine.
func (s *server) StartNonBlocking() error {
	logger.Info("Starting HTTP Server", "address", s.config.Address)
	handler := s.Router()
	if s.config.APILogging {
		handler = s.apiLogger(handler)
	}

	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	customServer := &fasthttp.Server{
		Handler:            handler,
		MaxRequestBodySize: s.config.MaxRequestBodySize * 1024 * 1024,
		ReadBufferSize:     s.config.ReadBufferSize * 1024,
	}
	s.servers = append(s.servers, customServer)

	go func() {
		if err := customServer.Serve(l); err != nil {
			logger.Error(err, "server stopped")
		}
	}()
	return nil
}

func (s *server) apiLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		reqLogger := logger
		if userAgent := string(ctx.Request.Header.Peek("User-Agent")); userAgent != "" {
			reqLogger = logger.WithValues("useragent", userAgent)
		}
		start := time.Now()
		reqLogger.Info("HTTP API Called", "method", string(ctx.Method()), "path", string(ctx.Path()))
		next(ctx)
		elapsed := float64(time.Since(start) / time.Millisecond)
		reqLogger.Info("HTTP API Response", "status code", ctx.Response.StatusCode(), "cost", elapsed)
	}
}

func (s *server) Router() fasthttp.RequestHandler {
	return s.getRouter(s.api.Endpoints()).Handler
}

func (s *server) getRouter(endpoints []Endpoint) *router.Router {
	r := router.New()
	for _, e := range endpoints {
		path := fmt.Sprintf("/%s/%s", e.Version, e.Route)
		r.Handle(e.Method, path, e.Handler)
	}
	r.GET("/metrics", metricsHandler())
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	return r
}

func (s *server) Close() error {
	for _, ln := range s.servers {
		// This calls `Close()` on the underlying listener.
		if err := ln.Shutdown(); err != nil {
			logger.Error(err, "server close failed")
			return err
		}
	}
	return nil
}
