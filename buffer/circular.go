package buffer

// Circular is a circular buffer with the ability to iterate over the first
// and second halves of the values collected in the order that they were
// appended. Chains use it to keep a window of recent trace values.
type Circular[T any] struct {
	buffer    []T   // actual storage
	pos       int   // Current position in buffer
	BufSize   int   // BufSize is the fixed number of values maintained in memory
	Count     int   // Count is the number of values in memory. Will always be <= BufSize
	TotalSeen int64 // TotalSeen is the total number of times Add has been called
}

// NewCircular creates a new circular buffer of totalSize. If totalSize is
// not a multiple of 2, it will be adjusted.
func NewCircular[T any](totalSize int) *Circular[T] {
	// Fix odd number situations
	half := totalSize / 2
	total := half + half

	return &Circular[T]{
		buffer:  make([]T, total),
		BufSize: total,
	}
}

// Internal: return the next array position
func (c *Circular[T]) nextPos() int {
	return (c.pos + 1) % c.BufSize
}

// Add appends the given value to the buffer, overwriting the oldest entry
func (c *Circular[T]) Add(v T) {
	c.TotalSeen++
	if c.BufSize < 1 {
		return
	}

	c.buffer[c.pos] = v
	c.pos = c.nextPos()

	c.Count++
	if c.Count > c.BufSize {
		c.Count = c.BufSize // max out
	}
}

// Full is true once BufSize values have been added
func (c *Circular[T]) Full() bool {
	return c.BufSize > 0 && c.Count >= c.BufSize
}

// Values returns a copy of the stored values, oldest first
func (c *Circular[T]) Values() []T {
	out := make([]T, 0, c.Count)
	start := 0
	if c.Full() {
		start = c.pos
	}
	for i := 0; i < c.Count; i++ {
		out = append(out, c.buffer[(start+i)%c.BufSize])
	}
	return out
}

// At returns the i-th stored value, oldest first. i must be in [0, Count).
func (c *Circular[T]) At(i int) T {
	start := 0
	if c.Full() {
		start = c.pos
	}
	return c.buffer[(start+i)%c.BufSize]
}

// FirstHalf returns an iterator over the first (oldest) half of the stored
// values. Will not return a valid iterator until Add has been called at least
// BufSize times
func (c *Circular[T]) FirstHalf() *Iterator[T] {
	if !c.Full() {
		return nil
	}

	return &Iterator[T]{
		buf:    c,
		curr:   c.pos, // Oldest is the one we're about to write
		remain: c.BufSize / 2,
	}
}

// SecondHalf returns an iterator over the second (most recent) half of the
// stored values. Will not return a valid iterator until Add has been called at
// least BufSize times
func (c *Circular[T]) SecondHalf() *Iterator[T] {
	if !c.Full() {
		return nil
	}

	half := c.BufSize / 2
	pos := (c.pos + half) % c.BufSize

	return &Iterator[T]{
		buf:    c,
		curr:   pos,
		remain: half,
	}
}

// Restore replaces the contents with vals (oldest first), keeping at most
// BufSize of the newest ones. TotalSeen is set to seen.
func (c *Circular[T]) Restore(vals []T, seen int64) {
	c.pos = 0
	c.Count = 0
	for _, v := range vals {
		c.Add(v)
	}
	c.TotalSeen = seen
}

// Iterator provides an iterator over a Circular buffer
type Iterator[T any] struct {
	buf    *Circular[T]
	curr   int
	remain int
}

// Next returns True when there are more values to read via Value
func (i *Iterator[T]) Next() bool {
	return i.remain > 0
}

// Value return the next value to be read. Should only be called if Next() is
// True
func (i *Iterator[T]) Value() T {
	v := i.buf.buffer[i.curr]
	i.curr = (i.curr + 1) % i.buf.BufSize
	i.remain--
	return v
}
