//go:build !nogpu

package wgpu

import (
	"log/slog"

	"github.com/gogpu/lightfield/compute"
)

// slogger returns the shared compute logger.
func slogger() *slog.Logger { return compute.Logger() }
