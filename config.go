package abd

import (
	"os"
	"path/filepath"
)

// DefaultMaxPayload is the largest payload this package will admit on a
// freshly connected transport, before any CNXN feature negotiation lowers
// or raises it.
const DefaultMaxPayload = 1024 * 1024

// Config holds the daemon-wide knobs that aren't negotiated per-transport.
// Populated from the environment the same way the teacher locates its
// on-disk state directory (ABD_HOME overriding a user-home default).
type Config struct {
	// MaxPayload bounds accepted WRTE payload sizes.
	MaxPayload uint32
	// AuthRequired gates whether a fresh CNXN is answered with AUTH(TOKEN)
	// or accepted immediately.
	AuthRequired bool
	// LockedMode, when true, restricts the service dispatcher to a safe
	// subset of services (see policy.go).
	LockedMode bool
	// StateDir is where the admin control socket lives. No key material is
	// read from or written to it.
	StateDir string
}

// DefaultConfig mirrors the teacher's KrDirFile/KrDir: look in the user's
// home directory under a dotted folder, honoring an env override for tests.
func DefaultConfig() (cfg Config, err error) {
	cfg = Config{
		MaxPayload:   DefaultMaxPayload,
		AuthRequired: true,
	}
	if dir := os.Getenv("ABD_HOME"); dir != "" {
		cfg.StateDir = dir
	} else {
		home, herr := os.UserHomeDir()
		if herr != nil {
			err = herr
			return
		}
		cfg.StateDir = filepath.Join(home, ".abd")
	}
	err = os.MkdirAll(cfg.StateDir, 0700)
	return
}

// StateFile joins a file name onto the configured state directory, the same
// helper shape as the teacher's KrDirFile.
func (c Config) StateFile(name string) string {
	return filepath.Join(c.StateDir, name)
}
