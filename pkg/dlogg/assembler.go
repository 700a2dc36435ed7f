package dlogg

// Assembler reassembles validated current-data frames from the raw serial
// byte stream. Bytes before a sync marker are discarded as line noise; a
// frame is only emitted once its checksum matches, so a Frame is immutable
// and trustworthy from the moment it exists.
//
// The rolling buffer is structurally bounded: every call consumes all
// complete frames and leaves at most one partial frame (< FrameLenTwoDL
// bytes) behind.
type Assembler struct {
	buf          []byte
	hint         RecordLayout
	framingErrs  uint64
	framesCut    uint64
	noiseDropped uint64
}

// Frame is one validated current-data record: full frame bytes including
// the device type byte(s) and trailing checksum.
type Frame struct {
	Bytes []byte
}

// Discriminator returns the leading device type byte used for layout
// classification.
func (f Frame) Discriminator() byte {
	return f.Bytes[0]
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// SetLayoutHint seeds the expected record shape, typically from a mode
// query reply. The hinted shape is tried first; the other shape is only
// considered when the hinted one does not validate, which doubles as the
// forced re-detection path for incompatible frames.
func (a *Assembler) SetLayoutHint(layout RecordLayout) {
	a.hint = layout
}

// LayoutHint returns the current session layout, LayoutUnknown before the
// first validated frame or mode reply.
func (a *Assembler) LayoutHint() RecordLayout {
	return a.hint
}

// Feed appends a chunk of raw bytes and returns all frames completed by it.
// Incomplete trailing data is kept for the next chunk.
func (a *Assembler) Feed(chunk []byte) []Frame {
	a.buf = append(a.buf, chunk...)
	return a.scan(false)
}

// Flush tries to complete a frame from whatever is buffered without waiting
// for more bytes, then discards the remainder. Called at the end of a poll
// tick so partial data is never held across ticks or disconnects.
func (a *Assembler) Flush() []Frame {
	frames := a.scan(true)
	a.Reset()
	return frames
}

// Reset discards all buffered bytes. Must be called after a read timeout or
// disconnect so stale partial data cannot prefix the next frame.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
}

// FramingErrors counts sync bytes that never validated into a frame.
func (a *Assembler) FramingErrors() uint64 {
	return a.framingErrs
}

// FramesAssembled counts checksum-valid frames emitted.
func (a *Assembler) FramesAssembled() uint64 {
	return a.framesCut
}

// NoiseBytes counts bytes discarded before a sync marker.
func (a *Assembler) NoiseBytes() uint64 {
	return a.noiseDropped
}

func (a *Assembler) scan(final bool) []Frame {
	var frames []Frame
	for {
		i := a.findSync()
		if i < 0 {
			a.noiseDropped += uint64(len(a.buf))
			a.buf = a.buf[:0]
			return frames
		}
		if i > 0 {
			a.noiseDropped += uint64(i)
			a.buf = a.buf[i:]
		}

		frame, decided := a.cut(final)
		if frame != nil {
			frames = append(frames, *frame)
			continue
		}
		if !decided {
			// Head may still complete into a frame with more bytes.
			return frames
		}

		// Nothing starting at this sync byte validates: drop it and rescan.
		a.framingErrs++
		a.buf = a.buf[1:]
	}
}

func (a *Assembler) findSync() int {
	for i, b := range a.buf {
		if isSyncByte(b) {
			return i
		}
	}
	return -1
}

// cut tries to slice one validated frame off the buffer head. The second
// return is false while the head could still grow into a valid frame.
// Candidates are tried in preference order and an incomplete candidate
// stops the search until more bytes arrive, so a longer frame is never
// mistaken for its shorter-layout prefix mid-stream.
func (a *Assembler) cut(final bool) (*Frame, bool) {
	for _, layout := range a.candidates() {
		n := layout.FrameLen()
		if len(a.buf) < n {
			if !final {
				return nil, false
			}
			continue
		}
		// A 2DL frame must open its second device block with a type byte.
		if layout == LayoutTwoDL && !isSyncByte(a.buf[1+deviceBlockLen]) {
			continue
		}
		if !checksumOK(a.buf[:n]) {
			continue
		}
		a.hint = layout
		a.framesCut++
		frame := &Frame{Bytes: append([]byte(nil), a.buf[:n]...)}
		a.buf = a.buf[n:]
		return frame, true
	}
	return nil, true
}

// candidates orders the layouts to try: the session layout first, then the
// other shape as fallback. With no session layout yet, the longer shape is
// preferred so a 2DL frame is never mistaken for its 1DL-length prefix.
func (a *Assembler) candidates() [2]RecordLayout {
	if a.hint == LayoutOneDL {
		return [2]RecordLayout{LayoutOneDL, LayoutTwoDL}
	}
	return [2]RecordLayout{LayoutTwoDL, LayoutOneDL}
}
