package gleval

import (
	"errors"
	"fmt"
	"slices"

	"github.com/soypat/csgmarch/glbuild"
)

// BufferSet owns the five scene storage buffers of an uploaded scene.
type BufferSet struct {
	gl       GL
	ids      [glbuild.NumSlots]uint32
	sizes    [glbuild.NumSlots]int
	seed     []byte
	numNodes int
	scratch  []byte
}

// Upload creates one storage buffer per scene table and binds each to its
// slot. Empty tables get an empty buffer that is left unbound.
func Upload(gl GL, tables glbuild.Tables) (*BufferSet, error) {
	err := tables.Validate()
	if err != nil {
		return nil, err
	}
	bs := &BufferSet{gl: gl}
	for slot := range bs.ids {
		id := gl.CreateBuffer()
		if id == 0 {
			bs.Delete()
			return nil, resourceErr(gl, fmt.Sprintf("create buffer for slot %d", slot), "got zero id")
		}
		bs.ids[slot] = id
	}
	err = bs.fill(tables)
	if err != nil {
		bs.Delete()
		return nil, err
	}
	return bs, nil
}

// Replace re-uploads every table wholesale. The tables may describe a scene
// of different size, as long as it fits the programs reading the buffers
// (see [Program.CheckNodes]).
func (bs *BufferSet) Replace(tables glbuild.Tables) error {
	if bs.deleted() {
		return errors.New("replace on deleted buffer set")
	}
	err := tables.Validate()
	if err != nil {
		return err
	}
	return bs.fill(tables)
}

func (bs *BufferSet) fill(tables glbuild.Tables) error {
	for slot, id := range bs.ids {
		data := tables.Slot(slot)
		bs.gl.BufferData(id, data)
		bs.sizes[slot] = len(data)
	}
	bs.seed = slices.Clone(tables.State)
	bs.numNodes = tables.NumNodes()
	bs.Bind()
	if err := bs.gl.Err(); err != nil {
		return &ResourceError{Op: "upload scene tables", Err: err}
	}
	return nil
}

// Bind binds every non-empty buffer to its slot and unbinds empty slots.
func (bs *BufferSet) Bind() {
	for slot, id := range bs.ids {
		if bs.sizes[slot] == 0 {
			id = 0
		}
		bs.gl.BindBufferBase(uint32(slot), id)
	}
}

// ResetState writes the state seed back into the state buffer.
func (bs *BufferSet) ResetState() error {
	if bs.deleted() {
		return errors.New("reset on deleted buffer set")
	}
	bs.gl.BufferData(bs.ids[glbuild.SlotState], bs.seed)
	if bs.numNodes > 0 {
		bs.gl.BindBufferBase(glbuild.SlotState, bs.ids[glbuild.SlotState])
	}
	if err := bs.gl.Err(); err != nil {
		return &ResourceError{Op: "reset state buffer", Err: err}
	}
	return nil
}

// ReadState reads the state buffer back and appends one value per node to dst.
// Callers must issue a memory barrier after any dispatch writing the buffer.
func (bs *BufferSet) ReadState(dst []float32) ([]float32, error) {
	if bs.deleted() {
		return dst, errors.New("read on deleted buffer set")
	}
	size := bs.sizes[glbuild.SlotState]
	if size == 0 {
		return dst, nil
	}
	bs.scratch = slices.Grow(bs.scratch[:0], size)[:size]
	err := bs.gl.ReadBuffer(bs.ids[glbuild.SlotState], bs.scratch)
	if err != nil {
		return dst, &ResourceError{Op: "read state buffer", Err: err}
	}
	return glbuild.DecodeState(dst, bs.scratch)
}

// NumNodes returns the node count of the uploaded scene.
func (bs *BufferSet) NumNodes() int { return bs.numNodes }

// Size returns the size in bytes of the buffer at slot.
func (bs *BufferSet) Size(slot int) int { return bs.sizes[slot] }

// ID returns the GL name of the buffer at slot.
func (bs *BufferSet) ID(slot int) uint32 { return bs.ids[slot] }

// Delete releases all buffers. Deleting twice is a no-op.
func (bs *BufferSet) Delete() {
	for slot, id := range bs.ids {
		if id != 0 {
			bs.gl.DeleteBuffer(id)
			bs.ids[slot] = 0
		}
	}
	bs.sizes = [glbuild.NumSlots]int{}
}

func (bs *BufferSet) deleted() bool { return bs.ids[glbuild.SlotState] == 0 }
