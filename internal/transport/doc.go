// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cross-platform socket primitive layer for uhttp.
// One backend per target platform, strictly separated by build tags
// (unix/windows/stub), behind the api.Sockets contract. Readiness bits,
// non-blocking semantics and the invalid-handle sentinel are identical
// across backends. A Subsystem value scopes the process-wide socket
// library initialization.

package transport
