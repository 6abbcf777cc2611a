/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	err error
}

func (f *fakeChecker) IsHealthy(context.Context) error {
	return f.err
}

func Test_MetricsServerEndpoints(t *testing.T) {
	checker := &fakeChecker{}
	ms := NewMetricsServer(NewMetricsOptions(context.Background(), []HealthChecker{checker})...)
	assert.Equal(t, DefaultMetricsPort, ms.port)
	server := httptest.NewServer(ms.Handler(context.Background()))
	defer server.Close()

	e := httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  server.URL,
		Reporter: httpexpect.NewRequireReporter(t),
	})
	BuildInfo.WithLabelValues("test", "v0", "linux").Set(1)
	e.GET("/livez").Expect().Status(http.StatusNoContent)
	e.GET("/readyz").Expect().Status(http.StatusNoContent)
	e.GET("/metrics").Expect().Status(http.StatusOK).Body().Contains("build_info")

	checker.err = errors.New("store is closed")
	e.GET("/readyz").Expect().Status(http.StatusInternalServerError).Body().IsEqual("store is closed")
}

func Test_WithPort(t *testing.T) {
	ms := NewMetricsServer(WithPort(9999), nil)
	assert.Equal(t, 9999, ms.port)
}

func Test_NewMetricsOptions_OneExecutorPerChecker(t *testing.T) {
	checkers := []HealthChecker{&fakeChecker{}, &fakeChecker{err: errors.New("second")}, &fakeChecker{err: errors.New("third")}}
	ms := NewMetricsServer(NewMetricsOptions(context.Background(), checkers)...)
	if assert.Len(t, ms.healthCheckExecutors, 3) {
		assert.NoError(t, ms.healthCheckExecutors[0]())
		assert.EqualError(t, ms.healthCheckExecutors[1](), "second")
		assert.EqualError(t, ms.healthCheckExecutors[2](), "third")
	}
}
