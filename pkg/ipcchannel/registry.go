package ipcchannel

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// GC removes stale channel discovery files of one session in dir:
// anything matching `{sessionID}_*` whose modification time is older than
// staleAfter (spec §6.5; DESIGN.md fixes the bound at 1s). Nothing in the
// runtime calls it on session close; a worker's own channel files are
// removed by Channel.Shutdown when the worker is cleaned up.
func GC(dir, sessionID string, staleAfter time.Duration, log zerolog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	prefix := SessionFilePrefix(sessionID)
	cutoff := time.Now().Add(-staleAfter)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err == nil {
			removed++
		}
	}

	if removed > 0 {
		log.Info().Str("session_id", sessionID).Int("removed", removed).Msg("garbage collected stale channel files")
	}
	return nil
}

// GCAll scans dir for files from any prior session and removes everything
// older than staleAfter, for startup-time cleanup of crashed sessions
// whose session ID is unknown to the current process.
func GCAll(dir string, staleAfter time.Duration, log zerolog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-staleAfter)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("startup garbage collection of stale channel files")
	}
	return nil
}
