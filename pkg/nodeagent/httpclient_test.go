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
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/apecloud/nodeops/apis/universe/v1alpha1"
)

type agentRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

var _ = Describe("Node agent HTTP client", func() {
	var (
		mu        sync.Mutex
		requests  []agentRequest
		readyWhen int
		server    *httptest.Server
		client    *HTTPClient
		node      = &v1alpha1.NodeDetails{NodeName: "yb-n1"}
	)

	BeforeEach(func() {
		requests = nil
		readyWhen = 0
		checks := 0
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			req := agentRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
			if data, _ := io.ReadAll(r.Body); len(data) > 0 {
				Expect(json.Unmarshal(data, &req.Body)).Should(Succeed())
			}
			requests = append(requests, req)
			switch r.URL.Path {
			case "/v1.0/checkserver":
				checks++
				_ = json.NewEncoder(w).Encode(map[string]any{"ready": checks > readyWhen})
			case "/v1.0/resizedisk":
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("volume busy"))
			case "/v1.0/updatemounteddisks":
				w.WriteHeader(http.StatusNotImplemented)
			default:
				w.WriteHeader(http.StatusNoContent)
			}
		}))
		host, port, err := net.SplitHostPort(server.Listener.Addr().String())
		Expect(err).ShouldNot(HaveOccurred())
		p, _ := strconv.Atoi(port)
		client = NewHTTPClient(p, 10*time.Millisecond)
		client.Address = func(*v1alpha1.NodeDetails) string { return host }
	})

	AfterEach(func() {
		server.Close()
	})

	It("posts primitives as json", func() {
		Expect(client.ChangeInstanceType(context.Background(), node, "c5.2xlarge")).Should(Succeed())
		Expect(client.StopServer(context.Background(), node, v1alpha1.MasterServer)).Should(Succeed())
		Expect(client.ChangeMasterConfig(context.Background(), node, RemoveMaster)).Should(Succeed())

		Expect(requests).Should(HaveLen(3))
		Expect(requests[0]).Should(Equal(agentRequest{
			Method: http.MethodPost,
			Path:   "/v1.0/changeinstancetype",
			Body:   map[string]any{"instanceType": "c5.2xlarge"},
		}))
		Expect(requests[1].Body).Should(Equal(map[string]any{"serverType": "Master"}))
		Expect(requests[2].Body).Should(Equal(map[string]any{"op": "Remove"}))
	})

	It("surfaces agent failures", func() {
		err := client.ResizeDisk(context.Background(), node, &v1alpha1.DeviceInfo{VolumeSize: 500, NumVolumes: 2})
		Expect(err).Should(MatchError(ContainSubstring("volume busy")))
		Expect(client.UpdateMountedDisks(context.Background(), node)).Should(MatchError(NotImplemented))
	})

	It("polls until the server is ready", func() {
		readyWhen = 2
		Expect(client.WaitForServerReady(context.Background(), node, v1alpha1.TServerServer)).Should(Succeed())
		Expect(requests).Should(HaveLen(3))
		Expect(requests[0].Method).Should(Equal(http.MethodGet))
		Expect(requests[0].Query).Should(Equal("serverType=TServer"))
	})

	It("gives up when the context expires", func() {
		readyWhen = 1 << 20
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		Expect(client.WaitForServerReady(ctx, node, v1alpha1.MasterServer)).Should(HaveOccurred())
	})
})
