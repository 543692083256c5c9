// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics, and debug introspection for uhttp.
//
// Provides:
//   - Daemon configuration with YAML loading and validation
//   - Prometheus collectors for the reactor
//   - Named debug probes with a JSON HTTP view
package control
