package launch

import (
	"fmt"
	"os"
	"os/user"
	"strings"
)

// SocketEnv overrides the daemon socket path.
const SocketEnv = "ADE_LAUNCHD_SOCK"

// SocketPath returns the Unix socket path of ade-launchd
func SocketPath() (string, error) {
	// Check environment variable first
	socketPath := os.Getenv(SocketEnv)
	if socketPath != "" {
		// Expand tilde if present
		if strings.HasPrefix(socketPath, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			socketPath = strings.Replace(socketPath, "~", home, 1)
		}
		return socketPath, nil
	}

	// Default: use user ID-based path
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return fmt.Sprintf("/tmp/ade-%s/launchd", currentUser.Uid), nil
}
