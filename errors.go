// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vision

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel matched by every ConfigurationError.
//
//	if errors.Is(err, vision.ErrConfiguration) { ... }
var ErrConfiguration = errors.New("vision: configuration error")

// ConfigurationError reports a non-recoverable setup mistake: a kernel whose
// argument list names an undeclared uniform, a kernel that fails to compile,
// a program fed its own output, an invalid descriptor size or enum value.
// It is raised at construction (or first call) and never retried.
type ConfigurationError struct {
	// Op is the operation that failed, e.g. "compile" or "run".
	Op string

	// Kernel names the kernel involved, if any.
	Kernel string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Kernel != "" {
		return fmt.Sprintf("vision: %s %q: %v", e.Op, e.Kernel, e.Err)
	}
	return fmt.Sprintf("vision: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configf builds a ConfigurationError with a formatted cause.
func Configf(op, kernel, format string, args ...any) error {
	return &ConfigurationError{Op: op, Kernel: kernel, Err: fmt.Errorf(format, args...)}
}

// WrapConfig wraps err as a ConfigurationError. It returns nil if err is nil
// and returns err unchanged if it already is a ConfigurationError.
func WrapConfig(op, kernel string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return err
	}
	return &ConfigurationError{Op: op, Kernel: kernel, Err: err}
}
