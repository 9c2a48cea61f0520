package registry

// Postprocessor transforms file content before it is sent.
type Postprocessor func(src []byte) []byte

// Postprocessors maps lowercase extensions to content transforms.
// A missing entry means the content is served unchanged.
type Postprocessors struct {
	byExt map[string]Postprocessor
}

// NewPostprocessors copies procs into an immutable registry.
func NewPostprocessors(procs map[string]Postprocessor) *Postprocessors {
	byExt := make(map[string]Postprocessor, len(procs))
	for ext, fn := range procs {
		if key := normalize(ext); key != "" && fn != nil {
			byExt[key] = fn
		}
	}
	return &Postprocessors{byExt: byExt}
}

// Lookup returns the postprocessor registered for ext.
func (p *Postprocessors) Lookup(ext string) (Postprocessor, bool) {
	key := normalize(ext)
	if key == "" {
		return nil, false
	}
	fn, ok := p.byExt[key]
	return fn, ok
}

// Apply runs the postprocessor for ext over src, or returns src unchanged.
func (p *Postprocessors) Apply(ext string, src []byte) ([]byte, bool) {
	fn, ok := p.Lookup(ext)
	if !ok {
		return src, false
	}
	return fn(src), true
}
