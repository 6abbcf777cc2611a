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

package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by faulty files unless a Fault names its own error.
var ErrInjected = errors.New("injected fault")

// Fault describes how files matching a rule fail.
type Fault struct {
	// FailWrites fails writes once FailAfterBytes bytes were written through the handle.
	FailWrites     bool
	FailAfterBytes int64
	FailOnSync     bool
	FailOnRead     bool
	Err            error
	// Hold blocks every write until it is closed. Held receives one signal per blocked
	// write, if it has room.
	Hold           <-chan struct{}
	Held           chan<- struct{}
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS wraps a FileSystem and injects the faults of the first rule whose pattern
// is contained in the file name.
type FaultyFS struct {
	FS    FileSystem
	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS wraps fs, or Default if fs is nil.
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{
		FS:    fs,
		rules: make(map[string]Fault),
	}
}

// AddRule injects fault into every file opened afterwards whose name contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// ClearRules removes every rule. Files already open keep their faults.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.rules)
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			return &faultyFile{File: file, fault: rule}, nil
		}
	}
	return file, nil
}

func (f *FaultyFS) Remove(name string) error {
	return f.FS.Remove(name)
}

func (f *FaultyFS) RemoveAll(path string) error {
	return f.FS.RemoveAll(path)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	fault   Fault
	written int64
}

// allow returns how many of n bytes may still be written.
func (ff *faultyFile) allow(n int) int {
	if !ff.fault.FailWrites {
		return n
	}
	left := ff.fault.FailAfterBytes - ff.written
	if left <= 0 {
		return 0
	}
	return int(min(int64(n), left))
}

func (ff *faultyFile) hold() {
	if ff.fault.Hold == nil {
		return
	}
	select {
	case ff.fault.Held <- struct{}{}:
	default:
	}
	<-ff.fault.Hold
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	ff.hold()
	allowed := ff.allow(len(p))
	n, err := ff.File.Write(p[:allowed])
	ff.written += int64(n)
	if err == nil && allowed < len(p) {
		err = ff.fault.err()
	}
	return n, err
}

// WriteAt writes as much as the fault allows, leaving a partial entry behind like a
// full disk would.
func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	ff.hold()
	allowed := ff.allow(len(p))
	n, err := ff.File.WriteAt(p[:allowed], off)
	ff.written += int64(n)
	if err == nil && allowed < len(p) {
		err = ff.fault.err()
	}
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	if ff.fault.FailOnRead {
		return 0, ff.fault.err()
	}
	return ff.File.Read(p)
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if ff.fault.FailOnRead {
		return 0, ff.fault.err()
	}
	return ff.File.ReadAt(p, off)
}
