package utils

import (
	"io"

	"github.com/MrSnakeDoc/restpub/internal/logger"
)

// CloseLogged closes c and logs a failure under name.
// Use in shutdown paths where a close error is worth seeing but not fatal.
func CloseLogged(c io.Closer, name string, log logger.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close",
			logger.String("resource", name),
			logger.Error(err))
	}
}
