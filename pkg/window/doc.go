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

// Package window implements the time model of the slice store.
//
// Tumbling and sliding windows are both described by a window size and a window
// slide (size == slide for tumbling windows). Instead of keeping state per window,
// the timeline is cut into slices at every window start and every window end, so that
// every window is exactly the union of a run of consecutive slices. A record is stored
// once, in the slice that contains its timestamp, regardless of how many windows
// overlap at that timestamp.
//
// For example, with size 10s and slide 5s the windows are [0,10), [5,15), [10,20), ...
// and the slices are [0,5), [5,10), [10,15), ... The window [5,15) is made of the
// slices [5,10) and [10,15).
//
// Slices and windows are kept sorted by their end time, which is also their identity,
// so scans for expired state can stop at the first entry that is still live.
package window
