package sink

import (
	"errors"
	"fmt"

	"github.com/thehivecorporation/log"
)

// publish moves every staged file next to its temp directory's parent and
// then removes the now-empty temp directories. Renames happen within one
// directory tree, so on filesystems with atomic rename a reader either sees
// the finished file or nothing.
func (s *Sink) publish() error {
	errs := make([]error, 0)
	tempDirs := make(map[string]struct{})

	s.writers.Range(func(_ writerKey, h *writerHandle) bool {
		if h.tempDir == "" {
			return true
		}
		tempDirs[h.tempDir] = struct{}{}

		log.WithFields(log.Fields{"from": h.writePath, "to": h.finalPath}).Debug("Publishing file")

		if err := s.fs.Rename(h.writePath, h.finalPath); err != nil {
			errs = append(errs, errors.Join(fmt.Errorf("error publishing '%s'", h.writePath), err))
		}
		return true
	})

	for dir := range tempDirs {
		if err := s.fs.Delete(dir, true); err != nil {
			errs = append(errs, errors.Join(fmt.Errorf("error removing temp dir '%s'", dir), err))
		}
	}

	return errors.Join(errs...)
}
