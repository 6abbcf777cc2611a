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

// Package storeerr defines the error kinds surfaced by the slice store.
// Configuration errors are fatal at setup, IO errors are retried by the next
// scheduling round and invariant violations panic.
package storeerr

import (
	"errors"
	"fmt"
)

type ErrKind int16

const (
	Configuration ErrKind = iota
	IO
	Invariant
)

func (ek ErrKind) String() string {
	switch ek {
	case Configuration:
		return "ConfigurationError"
	case IO:
		return "IOError"
	case Invariant:
		return "InvariantViolation"
	default:
		return "Unknown"
	}
}

// StoreError carries the kind of failure and an optional cause.
type StoreError struct {
	errKind    ErrKind
	errMessage string
	cause      error
}

func New(kind ErrKind, msg string) *StoreError {
	return &StoreError{
		errKind:    kind,
		errMessage: msg,
	}
}

// Newf formats msg and returns a StoreError of the given kind.
func Newf(kind ErrKind, format string, args ...interface{}) *StoreError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap returns a StoreError of the given kind which unwraps to err.
func Wrap(kind ErrKind, err error, msg string) *StoreError {
	return &StoreError{
		errKind:    kind,
		errMessage: msg,
		cause:      err,
	}
}

func (e *StoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.errKind, e.errMessage, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.errKind, e.errMessage)
}

func (e *StoreError) Unwrap() error {
	return e.cause
}

func (e *StoreError) ErrorKind() ErrKind {
	return e.errKind
}

func (e *StoreError) ErrorMessage() string {
	return e.errMessage
}

// IsConfiguration reports whether err, or any error it wraps, is a configuration error.
func IsConfiguration(err error) bool {
	return isKind(err, Configuration)
}

// IsIO reports whether err, or any error it wraps, is an IO error.
func IsIO(err error) bool {
	return isKind(err, IO)
}

func isKind(err error, kind ErrKind) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.errKind == kind
	}
	return false
}

// Invariantf panics with an invariant violation. Used for states the store cannot
// continue from, e.g. a cache without an eviction candidate.
func Invariantf(format string, args ...interface{}) {
	panic(Newf(Invariant, format, args...))
}
