package progress

// ringBuffer is a fixed-size circular buffer of lines. Pushing into a full
// buffer drops the oldest line.
type ringBuffer struct {
	lines    []string
	capacity int
	head     int
	count    int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

func (rb *ringBuffer) Push(line string) {
	rb.lines[rb.head] = line
	rb.head = (rb.head + 1) % rb.capacity
	if rb.count < rb.capacity {
		rb.count++
	}
}

// Lines returns the buffered lines, oldest first.
func (rb *ringBuffer) Lines() []string {
	if rb.count == 0 {
		return nil
	}
	result := make([]string, rb.count)
	start := 0
	if rb.count == rb.capacity {
		start = rb.head
	}
	for i := range rb.count {
		result[i] = rb.lines[(start+i)%rb.capacity]
	}
	return result
}
