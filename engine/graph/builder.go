// Package graph declares the passes of a frame and the image resources they exchange, validates
// every dependency, and compiles the image layout transitions each pass needs. Passes run in
// declaration order; the graph never reorders them.
package graph

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-render/engine/gpu"
)

// ResourceInfo describes an image resource and how a pass accesses it.
type ResourceInfo struct {
	Format    gpu.Format
	Dimension gpu.ImageDimension
	// Extent is the fixed size of the image. Resizable images follow the surface instead.
	Extent gpu.Extent3D
	Usage  Usage
	// Resizable marks size-dependent attachments recreated on surface resize.
	Resizable bool
	// Presentable marks the external swapchain image; it is transitioned for presentation
	// after the last pass.
	Presentable bool
}

// Access is one use of a resource by a pass.
type Access struct {
	Resource string
	Usage    Usage
}

// Resource is a tracked image resource.
type Resource struct {
	Name string
	Info ResourceInfo
	// External resources are supplied from outside the graph.
	External bool
	// InitialLayout is the layout of an external resource when the frame starts.
	InitialLayout gpu.ImageLayout
	// FirstWriter is the index of the pass that created the resource, or -1 for external ones.
	FirstWriter int
	Writers     []int
	Readers     []int
	// AllUsage is every image usage bit any pass needs.
	AllUsage gpu.ImageUsage
}

// PassNode is a declared pass.
type PassNode struct {
	Index  int
	Name   string
	Kind   PassKind
	Reads  []Access
	Writes []Access
}

// Builder declares passes and resources. Errors are sticky: the first one is kept, later
// declarations are ignored, and Compile reports it.
type Builder struct {
	passes    []*PassNode
	resources map[string]*Resource
	order     []string
	current   *PassNode
	err       error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{resources: make(map[string]*Resource)}
}

// Err returns the first declaration error.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) error {
	if b.err == nil {
		b.err = err
	}
	return err
}

// BeginPass starts a pass; the following declarations belong to it. Passes are numbered in
// call order.
//
// Parameters:
//   - name: the unique pass name
//   - kind: the queue work the pass records
//
// Returns:
//   - error: ErrDuplicatePass for a reused name, or the sticky error
func (b *Builder) BeginPass(name string, kind PassKind) error {
	if b.err != nil {
		return b.err
	}
	if slices.ContainsFunc(b.passes, func(p *PassNode) bool { return p.Name == name }) {
		return b.fail(fmt.Errorf("graph: pass %q: %w", name, ErrDuplicatePass))
	}
	b.current = &PassNode{Index: len(b.passes), Name: name, Kind: kind}
	b.passes = append(b.passes, b.current)
	return nil
}

func (b *Builder) active(resource string) error {
	if b.err != nil {
		return b.err
	}
	if b.current == nil {
		return b.fail(fmt.Errorf("graph: resource %q: %w", resource, ErrNoActivePass))
	}
	return nil
}

// CreateTarget declares a new resource written by the current pass.
//
// Parameters:
//   - name: the resource name, unique within the build
//   - info: the image description and the write usage
//
// Returns:
//   - error: *DuplicateResourceError if the name was already declared, or the sticky error
func (b *Builder) CreateTarget(name string, info ResourceInfo) error {
	if err := b.active(name); err != nil {
		return err
	}
	if r, ok := b.resources[name]; ok {
		first := "external"
		if r.FirstWriter >= 0 {
			first = b.passes[r.FirstWriter].Name
		}
		return b.fail(&DuplicateResourceError{Pass: b.current.Name, Resource: name, FirstWriter: first})
	}
	r := &Resource{Name: name, Info: info, FirstWriter: b.current.Index, AllUsage: info.Usage.ImageUsage()}
	b.resources[name] = r
	b.order = append(b.order, name)
	b.addWrite(r, info.Usage)
	return nil
}

// Declared reports whether a resource with the given name has been declared. Passes with optional
// inputs use it to skip reads of resources no enabled pass produces.
func (b *Builder) Declared(name string) bool {
	_, ok := b.resources[name]
	return ok
}

// ImportExternal declares a resource supplied from outside the graph, such as the swapchain
// image or an uploaded environment map.
//
// Parameters:
//   - name: the resource name, unique within the build
//   - info: the image description and the usage passes write it with
//   - layout: the layout the image is in when the frame starts
//
// Returns:
//   - error: *DuplicateResourceError if the name was already declared, or the sticky error
func (b *Builder) ImportExternal(name string, info ResourceInfo, layout gpu.ImageLayout) error {
	if b.err != nil {
		return b.err
	}
	if r, ok := b.resources[name]; ok {
		pass := ""
		if b.current != nil {
			pass = b.current.Name
		}
		first := "external"
		if r.FirstWriter >= 0 {
			first = b.passes[r.FirstWriter].Name
		}
		return b.fail(&DuplicateResourceError{Pass: pass, Resource: name, FirstWriter: first})
	}
	b.resources[name] = &Resource{
		Name:          name,
		Info:          info,
		External:      true,
		InitialLayout: layout,
		FirstWriter:   -1,
		AllUsage:      info.Usage.ImageUsage(),
	}
	b.order = append(b.order, name)
	return nil
}

// Read declares that the current pass reads a resource.
//
// Parameters:
//   - name: the resource name
//   - info: the read usage; other fields are ignored
//
// Returns:
//   - error: *UnknownResourceError if no pass wrote the resource and it is not external,
//     or the sticky error
func (b *Builder) Read(name string, info ResourceInfo) error {
	if err := b.active(name); err != nil {
		return err
	}
	r, ok := b.resources[name]
	if !ok || (!r.External && len(r.Writers) == 0) {
		return b.fail(&UnknownResourceError{Pass: b.current.Name, Resource: name})
	}
	r.Readers = append(r.Readers, b.current.Index)
	r.AllUsage |= info.Usage.ImageUsage()
	b.current.Reads = append(b.current.Reads, Access{Resource: name, Usage: info.Usage})
	return nil
}

// Write declares an additional writer of an existing resource, for passes that accumulate into
// an earlier pass's target. It uses the usage the resource was declared with and does not
// change which pass produces it.
//
// Parameters:
//   - name: the resource name
//
// Returns:
//   - error: *UnknownResourceError for an undeclared name, or the sticky error
func (b *Builder) Write(name string) error {
	if err := b.active(name); err != nil {
		return err
	}
	r, ok := b.resources[name]
	if !ok {
		return b.fail(&UnknownResourceError{Pass: b.current.Name, Resource: name})
	}
	b.addWrite(r, r.Info.Usage)
	return nil
}

func (b *Builder) addWrite(r *Resource, usage Usage) {
	if !slices.Contains(r.Writers, b.current.Index) {
		r.Writers = append(r.Writers, b.current.Index)
	}
	b.current.Writes = append(b.current.Writes, Access{Resource: r.Name, Usage: usage})
}

// Compile validates the declarations and computes the barriers of every pass.
//
// Returns:
//   - *Plan: the compiled plan
//   - error: the first declaration error
func (b *Builder) Compile() (*Plan, error) {
	if b.err != nil {
		return nil, b.err
	}

	states := make(map[string]imageState, len(b.resources))
	for name, r := range b.resources {
		s := imageState{layout: gpu.LayoutUndefined, stage: gpu.StageTop}
		if r.External {
			s.layout = r.InitialLayout
		}
		states[name] = s
	}

	plan := &Plan{resources: make(map[string]*Resource, len(b.resources))}
	for _, name := range b.order {
		plan.resources[name] = b.resources[name]
	}
	plan.order = slices.Clone(b.order)

	for _, p := range b.passes {
		step := Step{Pass: *p, Reads: p.Reads, Writes: p.Writes}
		for _, a := range slices.Concat(p.Reads, p.Writes) {
			prev := states[a.Resource]
			next := a.Usage.state(p.Kind)
			if !needsBarrier(prev, next) {
				continue
			}
			// A resource read and written by the same pass takes the write state.
			if i := slices.IndexFunc(step.Barriers, func(br gpu.ImageBarrier) bool { return br.Name == a.Resource }); i >= 0 {
				step.Barriers[i].NewLayout = next.layout
				step.Barriers[i].DstAccess |= next.access
				step.Barriers[i].DstStage |= next.stage
				states[a.Resource] = next
				continue
			}
			step.Barriers = append(step.Barriers, gpu.ImageBarrier{
				Name:      a.Resource,
				OldLayout: prev.layout,
				NewLayout: next.layout,
				SrcAccess: prev.access,
				DstAccess: next.access,
				SrcStage:  prev.stage,
				DstStage:  next.stage,
			})
			states[a.Resource] = next
		}
		plan.Steps = append(plan.Steps, step)
	}

	for _, name := range b.order {
		r := b.resources[name]
		if !r.Info.Presentable {
			continue
		}
		prev := states[name]
		plan.Final = append(plan.Final, gpu.ImageBarrier{
			Name:      name,
			OldLayout: prev.layout,
			NewLayout: gpu.LayoutPresent,
			SrcAccess: prev.access,
			DstAccess: gpu.AccessNone,
			SrcStage:  prev.stage,
			DstStage:  gpu.StageBottom,
		})
	}
	return plan, nil
}
