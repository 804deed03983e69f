// Package rawimage holds the optional RAW decode capability. A decoder is
// registered at process start (or not at all); the pipeline checks
// availability before doing any RAW work so an absent capability fails fast
// instead of deep inside a decode.
package rawimage

import (
	"context"
	"image"
	"sync"
)

// Decoder converts a RAW container into a single fixed rendering. A given
// input must always produce the same pixels.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, data []byte) (image.Image, error)
}

var (
	mu         sync.RWMutex
	registered Decoder
)

// Register installs the process-wide RAW decoder. Later registrations
// replace earlier ones; passing nil clears the capability.
func Register(d Decoder) {
	mu.Lock()
	defer mu.Unlock()
	registered = d
}

// Registered returns the installed decoder, if any.
func Registered() (Decoder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return registered, registered != nil
}

// Available reports whether a RAW decoder is installed.
func Available() bool {
	_, ok := Registered()
	return ok
}
