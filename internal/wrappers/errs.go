// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wrappers holds small error-aggregation helpers for code that
// tears down several independent background tasks at once and wants to
// report every failure instead of only the first. No other package in
// this module imports it.
package wrappers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Errs accumulates errors from concurrent goroutines under one lock.
type Errs struct {
	mu   sync.RWMutex
	errs []error
}

// Add records err, ignoring nil.
func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// Errored reports whether any error has been added.
func (e *Errs) Errored() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.errs) > 0
}

// Err collapses the accumulated errors into one, or nil if there are none.
func (e *Errs) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	default:
		return errors.New(e.string())
	}
}

// Len returns the number of errors added so far.
func (e *Errs) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.errs)
}

func (e *Errs) string() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d error", len(e.errs))
	if len(e.errs) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString(" occurred:")
	for _, err := range e.errs {
		sb.WriteString("\n\t* ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}
