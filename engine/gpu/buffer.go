package gpu

// Buffer is a linear block of device memory.
type Buffer struct {
	resource
	desc BufferDesc
}

// Desc returns the description the buffer was created with.
func (b *Buffer) Desc() BufferDesc {
	return b.desc
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.desc.Size
}

// Usage returns the usage flags of the buffer.
func (b *Buffer) Usage() BufferUsage {
	return b.desc.Usage
}

// Upload writes data into the buffer at offset.
//
// Parameters:
//   - offset: the byte offset to write at
//   - data: the bytes to write
//
// Returns:
//   - error: ErrOutOfBounds if the write runs past the end, ErrReleased after Release
func (b *Buffer) Upload(offset uint64, data []byte) error {
	if err := b.checkLive("upload buffer"); err != nil {
		return err
	}
	if offset > b.desc.Size || uint64(len(data)) > b.desc.Size-offset {
		return opError("upload buffer", b.label, ErrOutOfBounds)
	}
	if len(data) == 0 {
		return nil
	}
	return opError("upload buffer", b.label, b.dev.backend.WriteBuffer(b, offset, data))
}

// Read copies size bytes starting at offset back to host memory.
//
// Parameters:
//   - offset: the byte offset to read from
//   - size: the number of bytes to read
//
// Returns:
//   - []byte: the buffer contents
//   - error: ErrOutOfBounds if the read runs past the end, ErrReleased after Release
func (b *Buffer) Read(offset, size uint64) ([]byte, error) {
	if err := b.checkLive("read buffer"); err != nil {
		return nil, err
	}
	if offset > b.desc.Size || size > b.desc.Size-offset {
		return nil, opError("read buffer", b.label, ErrOutOfBounds)
	}
	data, err := b.dev.backend.ReadBuffer(b, offset, size)
	if err != nil {
		return nil, opError("read buffer", b.label, err)
	}
	return data, nil
}

// CopyTo copies the start of the buffer into dst, up to len(dst) or the buffer size.
//
// Parameters:
//   - dst: the destination slice
//
// Returns:
//   - int: the number of bytes copied
//   - error: an error if the read failed
func (b *Buffer) CopyTo(dst []byte) (int, error) {
	n := min(uint64(len(dst)), b.desc.Size)
	data, err := b.Read(0, n)
	if err != nil {
		return 0, err
	}
	return copy(dst, data), nil
}
