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
	"github.com/valyala/fasthttp"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/apecloud/nodeops/pkg/constant"
	viper "github.com/apecloud/nodeops/pkg/viperx"
)

var logger = ctrl.Log.WithName("HTTPServer")

type Config struct {
	Address    string
	APILogging bool

	// MaxRequestBodySize is in MB.
	MaxRequestBodySize int
	// ReadBufferSize is in KB.
	ReadBufferSize int
}

// ConfigFromViper reads the server config from the global settings.
func ConfigFromViper() Config {
	cfg := Config{
		Address:            viper.GetString(constant.CfgKeyAPIAddr),
		APILogging:         viper.GetBool(constant.CfgKeyAPILogging),
		MaxRequestBodySize: 4,
		ReadBufferSize:     4,
	}
	if cfg.Address == "" {
		cfg.Address = constant.DefaultAPIAddr
	}
	return cfg
}

type Endpoint struct {
	Method  string
	Route   string
	Version string
	Handler fasthttp.RequestHandler
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func NewErrorResponse(errorCode, message string) ErrorResponse {
	return ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
	}
}
