package context

import "context"

// messageCache is the single-slot cache holding the last assembled message
// and the checksum it was built under. One slot is all the engine needs: a
// new checksum always supersedes the previous entry.
type messageCache struct {
	checksum string
	message  string
	valid    bool
}

// GetOrBuild returns the stored message when checksum matches the slot.
// Otherwise it invokes build, which returns the message together with the
// checksum to store it under (recomputed after the build so it reflects the
// freshly selected features). A build error, cancellation included, leaves
// the slot exactly as it was.
func (c *messageCache) GetOrBuild(ctx context.Context, checksum string, build func(context.Context) (string, string, error)) (string, error) {
	if c.valid && c.checksum == checksum {
		return c.message, nil
	}
	message, fresh, err := build(ctx)
	if err != nil {
		return "", err
	}
	c.message = message
	c.checksum = fresh
	c.valid = true
	return message, nil
}
