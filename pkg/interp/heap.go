package interp

// Heap is the process-wide table of integer arrays. Handles are issued
// monotonically from zero and stay valid until Release; entries are
// never freed or reused during a run. Arrays carry their length in
// slot 0, elements in slots 1..n.
type Heap struct {
	arrays [][]int32
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Add appends a to the table and returns its handle.
func (h *Heap) Add(a []int32) int32 {
	h.arrays = append(h.arrays, a)
	return int32(len(h.arrays) - 1)
}

// Get returns the backing array for handle. Unchecked: passing a handle
// the heap never issued is a caller error.
func (h *Heap) Get(handle int32) []int32 {
	return h.arrays[handle]
}

// Len returns the number of arrays the heap owns.
func (h *Heap) Len() int {
	return len(h.arrays)
}

// Release drops every stored array. All previously issued handles are
// invalid afterwards.
func (h *Heap) Release() {
	h.arrays = nil
}
