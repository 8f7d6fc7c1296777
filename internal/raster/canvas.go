package raster

import (
	"fmt"
	"sync"
)

// Surface is a drawing surface whose raster can be read and repainted.
type Surface interface {
	Size() (width, height int)
	Read() *PixelBuffer
	Write(buf *PixelBuffer) error
}

// IsBlank reports whether nothing has been drawn on s.
func IsBlank(s Surface) bool {
	return s.Read().IsBlank()
}

// Canvas is an in-memory Surface safe for concurrent use.
type Canvas struct {
	mu  sync.Mutex
	buf *PixelBuffer
}

// NewCanvas creates a transparent canvas.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{buf: NewPixelBuffer(width, height)}
}

// Size returns the canvas dimensions.
func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Width, c.buf.Height
}

// Read returns a copy of the current contents.
func (c *Canvas) Read() *PixelBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Clone()
}

// Write replaces the contents with buf in one paint.
func (c *Canvas) Write(buf *PixelBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf.Width != c.buf.Width || buf.Height != c.buf.Height {
		return fmt.Errorf("buffer is %dx%d, canvas is %dx%d", buf.Width, buf.Height, c.buf.Width, c.buf.Height)
	}
	if len(buf.Pix) != buf.Width*buf.Height*4 {
		return fmt.Errorf("buffer has %d samples, want %d", len(buf.Pix), buf.Width*buf.Height*4)
	}
	c.buf = buf.Clone()
	return nil
}

// Apply runs fn on a private copy of the contents and publishes the result
// atomically. Concurrent Apply calls are serialized, so two fills never
// interleave on the same canvas.
func (c *Canvas) Apply(fn func(buf *PixelBuffer)) *PixelBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	work := c.buf.Clone()
	fn(work)
	c.buf = work
	return work.Clone()
}

// Clear makes every pixel transparent.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = NewPixelBuffer(c.buf.Width, c.buf.Height)
}

// LoadImage decodes an encoded image, scales it to the canvas size if
// needed, and paints it.
func (c *Canvas) LoadImage(data []byte) error {
	w, h := c.Size()
	buf, err := DecodeToSize(data, w, h)
	if err != nil {
		return err
	}
	return c.Write(buf)
}

// PNG encodes the current contents.
func (c *Canvas) PNG() ([]byte, error) {
	return EncodePNG(c.Read())
}
