package sink

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// fileNameBuilder produces unique output filenames. Uniqueness comes from a
// high-resolution timestamp plus the worker index, with a short uuid suffix
// guarding against clock coarseness.
type fileNameBuilder struct {
	prefix    string
	extension string
	worker    int
}

func newFileNameBuilder() *fileNameBuilder {
	return &fileNameBuilder{prefix: "part"}
}

func (b *fileNameBuilder) WithPrefix(p string) *fileNameBuilder {
	b.prefix = p
	return b
}

func (b *fileNameBuilder) WithWorker(id int) *fileNameBuilder {
	b.worker = id
	return b
}

func (b *fileNameBuilder) WithExtension(ext string) *fileNameBuilder {
	b.extension = ext
	return b
}

func (b *fileNameBuilder) Build() string {
	token := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s_%d_%d_%s%s", b.prefix, time.Now().UnixNano(), b.worker, token, b.extension)
}
