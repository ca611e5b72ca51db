// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package humus provides the module-wide structured [Logger].
package humus

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Logger returns an OpenTelemetry-backed structured logger for the
// given instrumentation name, typically a package path.
func Logger(name string) *slog.Logger {
	return otelslog.NewLogger(name)
}
