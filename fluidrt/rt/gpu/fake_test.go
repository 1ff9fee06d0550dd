package gpu

type fakeBuffer struct {
	label string
	kind  BufferKind
	data  []byte
}

func (b *fakeBuffer) Label() string    { return b.label }
func (b *fakeBuffer) Kind() BufferKind { return b.kind }
func (b *fakeBuffer) Size() int        { return len(b.data) }

type fakeTexture struct{ label string }

func (t *fakeTexture) Label() string    { return t.label }
func (t *fakeTexture) Format() Format   { return FormatRGBA32F }
func (t *fakeTexture) Size() (int, int) { return 4, 4 }

type fakeProgram struct {
	src      ProgramSource
	uniforms []string
}

func (p *fakeProgram) Source() ProgramSource { return p.src }
func (p *fakeProgram) UniformLocation(name string) int {
	for i, u := range p.uniforms {
		if u == name {
			return i
		}
	}
	return NotPresent
}

// fakeDevice records what it is asked to do.
type fakeDevice struct {
	invocations []*Invocation
	writes      int
}

func (d *fakeDevice) Size() (int, int) { return 4, 4 }
func (d *fakeDevice) CreateTarget(desc TargetDesc) (Target, error) {
	return nil, desc.Validate(4, 4)
}
func (d *fakeDevice) DefaultTarget() Target { return nil }
func (d *fakeDevice) CreateBuffer(desc BufferDesc) (Buffer, error) {
	return &fakeBuffer{label: desc.Label, kind: desc.Kind, data: make([]byte, desc.Size)}, nil
}
func (d *fakeDevice) WriteBuffer(buf Buffer, offset int, data []byte) error {
	d.writes++
	copy(buf.(*fakeBuffer).data[offset:], data)
	return nil
}
func (d *fakeDevice) ReleaseBuffer(buf Buffer) {}
func (d *fakeDevice) CreateProgram(src ProgramSource) (Program, error) {
	return &fakeProgram{src: src}, nil
}
func (d *fakeDevice) BeginFrame() error { return nil }
func (d *fakeDevice) Execute(inv *Invocation) error {
	d.invocations = append(d.invocations, inv)
	return nil
}
func (d *fakeDevice) EndFrame() error { return nil }
func (d *fakeDevice) AbortFrame()     {}
