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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion   = "version"
	LabelPlatform  = "platform"
	LabelComponent = "component"
	LabelStore     = "store"
	LabelPolicy    = "policy"
	LabelOperation = "operation"
	LabelErrorKind = "error_kind"
	LabelReason    = "reason"
)

// BuildInfo is a constant '1' gauge labelled by binary version and platform.
var BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "build_info",
	Help: "A metric with a constant value '1', labeled by windowstore binary version, platform, and component",
}, []string{LabelComponent, LabelVersion, LabelPlatform})
