// Package webgpu implements the device backend: every operator runs as
// generated WGSL compute kernels over device-resident buffers.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// The native wgpu library is only wired on Windows; elsewhere New reports
// ErrUnavailable and callers fall back to the CPU backend.
package webgpu

import "errors"

// ErrUnavailable is returned by New when no WebGPU adapter can be used.
var ErrUnavailable = errors.New("webgpu: not available")

// ErrAliasedInput is returned by Compile for a node that reads the same
// tensor through two inputs. Kernels bind every operand read_write, and
// WebGPU rejects two writable bindings of one buffer in a bind group.
var ErrAliasedInput = errors.New("webgpu: tensor bound to more than one input")
