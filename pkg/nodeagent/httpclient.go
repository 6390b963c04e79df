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

package nodeagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
)

const (
	urlTemplate = "http://%s:%d/v1.0/"
)

var NotImplemented = errors.New("NotImplemented")

// HTTPClient drives the node agent that runs on every universe node.
type HTTPClient struct {
	Client         *http.Client
	Port           int
	RequestTimeout time.Duration
	PollInterval   time.Duration

	// Address resolves the host of a node, the node name by default.
	Address func(node *v1alpha1.NodeDetails) string

	logger logr.Logger
}

var _ NodeManager = &HTTPClient{}

func NewHTTPClient(port int, pollInterval time.Duration) *HTTPClient {
	// don't use default http-client
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
	}
	netTransport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &HTTPClient{
		Client: &http.Client{
			Timeout:   time.Second * 30,
			Transport: netTransport,
		},
		Port:           port,
		RequestTimeout: 30 * time.Second,
		PollInterval:   pollInterval,
		Address: func(node *v1alpha1.NodeDetails) string {
			return node.NodeName
		},
		logger: ctrl.Log.WithName("node agent client"),
	}
}

func (cli *HTTPClient) UpdateMountedDisks(ctx context.Context, node *v1alpha1.NodeDetails) error {
	_, err := cli.Request(ctx, node, "updateMountedDisks", http.MethodPost, nil)
	return err
}

func (cli *HTTPClient) ResizeDisk(ctx context.Context, node *v1alpha1.NodeDetails, deviceInfo *v1alpha1.DeviceInfo) error {
	_, err := cli.Request(ctx, node, "resizeDisk", http.MethodPost, map[string]any{
		"volumeSize": deviceInfo.VolumeSize,
		"numVolumes": deviceInfo.NumVolumes,
	})
	return err
}

func (cli *HTTPClient) ChangeInstanceType(ctx context.Context, node *v1alpha1.NodeDetails, instanceType string) error {
	_, err := cli.Request(ctx, node, "changeInstanceType", http.MethodPost, map[string]any{
		"instanceType": instanceType,
	})
	return err
}

func (cli *HTTPClient) StopServer(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error {
	_, err := cli.Request(ctx, node, "stopServer", http.MethodPost, map[string]any{
		"serverType": serverType,
	})
	return err
}

func (cli *HTTPClient) StartServer(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error {
	_, err := cli.Request(ctx, node, "startServer", http.MethodPost, map[string]any{
		"serverType": serverType,
	})
	return err
}

func (cli *HTTPClient) WaitForServerReady(ctx context.Context, node *v1alpha1.NodeDetails, serverType v1alpha1.ServerType) error {
	return wait.PollImmediateUntilWithContext(ctx, cli.PollInterval, func(ctx context.Context) (bool, error) {
		result, err := cli.Request(ctx, node, "checkServer", http.MethodGet, map[string]any{
			"serverType": serverType,
		})
		if err != nil {
			cli.logger.V(1).Info("server not ready", "node", node.NodeName, "server", serverType, "error", err.Error())
			return false, nil
		}
		ready, _ := result["ready"].(bool)
		return ready, nil
	})
}

func (cli *HTTPClient) StepDownMasterLeader(ctx context.Context, node *v1alpha1.NodeDetails) error {
	_, err := cli.Request(ctx, node, "stepDownMasterLeader", http.MethodPost, nil)
	return err
}

func (cli *HTTPClient) ChangeMasterConfig(ctx context.Context, node *v1alpha1.NodeDetails, op MasterConfigOp) error {
	_, err := cli.Request(ctx, node, "changeMasterConfig", http.MethodPost, map[string]any{
		"op": op,
	})
	return err
}

// Request calls one agent operation and decodes the json answer.
func (cli *HTTPClient) Request(ctx context.Context, node *v1alpha1.NodeDetails, operation, method string, req map[string]any) (map[string]any, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, cli.RequestTimeout)
	defer cancel()

	url := fmt.Sprintf(urlTemplate, cli.Address(node), cli.Port) + strings.ToLower(operation)

	var reader io.Reader = nil
	if method == http.MethodGet && req != nil {
		query := neturl.Values{}
		for k, v := range req {
			query.Set(k, fmt.Sprint(v))
		}
		url += "?" + query.Encode()
	} else if req != nil {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, errors.Wrap(err, "request encode failed")
		}
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctxWithTimeout, method, url, reader)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := cli.Client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "node %s: %s", node.NodeName, operation)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return parseBody(resp.Body)
	case http.StatusNoContent:
		return nil, nil
	case http.StatusNotImplemented:
		return nil, NotImplemented
	default:
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("node %s: %s failed with status %d: %s", node.NodeName, operation, resp.StatusCode, string(msg))
	}
}

func parseBody(body io.Reader) (map[string]any, error) {
	result := map[string]any{}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body failed")
	}
	if len(data) == 0 {
		return result, nil
	}
	if err = json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "decode body failed")
	}
	return result, nil
}
