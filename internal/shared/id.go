package shared

import (
	"fmt"
	"time"

	"github.com/jaevor/go-nanoid"
)

var newSuffix = mustGenerator(8)

func mustGenerator(length int) func() string {
	gen, err := nanoid.Standard(length)
	if err != nil {
		panic(fmt.Sprintf("shared: nanoid generator: %v", err))
	}
	return gen
}

// NewID returns a time-ordered identifier with a random suffix to avoid
// collisions, e.g. "sal_1717akXy42Bf9qLm".
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%d%s", prefix, time.Now().UnixMilli(), newSuffix())
}
