package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewDebugName returns a unique, human readable name for a GPU object or a job.
func NewDebugName(prefix string) string {
	id := uuid.New()
	if prefix == "" {
		return id.String()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String()[:8])
}
