package storage

import (
	"context"
	"strings"
	"time"

	"github.com/starford/tabula/internal/apperr"
)

// DefaultIOTimeout bounds a single read or write issued through Content.
const DefaultIOTimeout = 10 * time.Second

// Content serves note text to the editor. Editor paths are rooted at the
// vault: "/daily/today.md" is the file daily/today.md under the root.
type Content struct {
	p       Provider
	timeout time.Duration
}

// NewContent wraps p. A non-positive timeout selects DefaultIOTimeout.
func NewContent(p Provider, timeout time.Duration) *Content {
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}
	return &Content{p: p, timeout: timeout}
}

// RelPath converts an editor path into a Provider path.
func RelPath(notePath string) string {
	return strings.TrimLeft(strings.ReplaceAll(notePath, `\`, "/"), "/")
}

// NotePath converts a Provider path into an editor path.
func NotePath(rel string) string {
	return "/" + RelPath(rel)
}

// ReadContent returns the text of the note at path.
func (c *Content) ReadContent(ctx context.Context, path string) (string, error) {
	var data []byte
	err := c.do(ctx, func() error {
		var err error
		data, err = c.p.Read(RelPath(path))
		return err
	})
	if err != nil {
		return "", apperr.Classify(err)
	}
	return string(data), nil
}

// WriteContent replaces the text of the note at path.
func (c *Content) WriteContent(ctx context.Context, path, content string) error {
	err := c.do(ctx, func() error {
		return c.p.Write(RelPath(path), []byte(content))
	})
	return apperr.Classify(err)
}

// do runs fn under the I/O deadline. Provider calls are not cancellable, so
// on timeout fn keeps running in the background and its result is dropped.
func (c *Content) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
