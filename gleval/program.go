package gleval

import (
	"errors"
	"fmt"

	"github.com/soypat/csgmarch/glbuild"
)

// Shader is a compiled stage awaiting linking. The zero value is not a valid shader.
type Shader struct {
	id       uint32
	stage    Stage
	maxNodes int
}

// ID returns the GL name of the shader.
func (s Shader) ID() uint32 { return s.id }

// Stage returns the pipeline stage the shader was compiled for.
func (s Shader) Stage() Stage { return s.stage }

// StageSource is the source code of a single stage.
type StageSource struct {
	Stage  Stage
	Source string
}

// ProgramManager compiles shader stages and links them into programs.
type ProgramManager struct {
	gl GL
}

// NewProgramManager returns a ProgramManager that issues commands to gl.
func NewProgramManager(gl GL) *ProgramManager {
	return &ProgramManager{gl: gl}
}

// Compile compiles source for the stage. On failure the shader object is
// deleted and a *[CompileError] with the driver's log is returned.
func (pm *ProgramManager) Compile(source string, stage Stage) (Shader, error) {
	if stage > StageCompute {
		return Shader{}, errors.New("invalid shader stage " + stage.String())
	}
	id := pm.gl.CreateShader(stage)
	if id == 0 {
		return Shader{}, resourceErr(pm.gl, "create "+stage.String()+" shader", "got zero id")
	}
	if !pm.gl.CompileShader(id, source) {
		log := pm.gl.ShaderInfoLog(id)
		pm.gl.DeleteShader(id)
		if log == "" {
			log = "no info log available"
		}
		return Shader{}, &CompileError{Stage: stage, Log: log}
	}
	return Shader{id: id, stage: stage, maxNodes: glbuild.ParseMaxNodes(source)}, nil
}

// Link links compiled stages into a program. The stages are detached and
// deleted whether linking succeeds or not, so they must not be reused.
func (pm *ProgramManager) Link(stages ...Shader) (*Program, error) {
	gl := pm.gl
	defer func() {
		for _, s := range stages {
			if s.id != 0 {
				gl.DeleteShader(s.id)
			}
		}
	}()
	if len(stages) == 0 {
		return nil, &LinkError{Log: "no stages to link"}
	}
	for _, s := range stages {
		if s.id == 0 {
			return nil, &LinkError{Log: "zero shader among stages"}
		}
	}
	id := gl.CreateProgram()
	if id == 0 {
		return nil, resourceErr(gl, "create program", "got zero id")
	}
	for _, s := range stages {
		gl.AttachShader(id, s.id)
	}
	ok := gl.LinkProgram(id)
	for _, s := range stages {
		gl.DetachShader(id, s.id)
	}
	if !ok {
		log := gl.ProgramInfoLog(id)
		gl.DeleteProgram(id)
		if log == "" {
			log = "no info log available"
		}
		return nil, &LinkError{Log: log}
	}
	maxNodes := 0
	for _, s := range stages {
		if s.maxNodes > 0 && (maxNodes == 0 || s.maxNodes < maxNodes) {
			maxNodes = s.maxNodes
		}
	}
	return &Program{gl: gl, id: id, locs: make(map[string]int32), maxNodes: maxNodes}, nil
}

// CompileProgram compiles every source and links them. Stages compiled before
// a failure are deleted.
func (pm *ProgramManager) CompileProgram(sources ...StageSource) (*Program, error) {
	stages := make([]Shader, 0, len(sources))
	for _, src := range sources {
		s, err := pm.Compile(src.Source, src.Stage)
		if err != nil {
			for _, compiled := range stages {
				pm.gl.DeleteShader(compiled.id)
			}
			return nil, err
		}
		stages = append(stages, s)
	}
	return pm.Link(stages...)
}

// Program is a linked GL program. It owns the underlying GL object until Delete is called.
type Program struct {
	gl       GL
	id       uint32
	locs     map[string]int32
	maxNodes int
}

// ID returns the GL name of the program, or zero if deleted.
func (p *Program) ID() uint32 {
	if p == nil {
		return 0
	}
	return p.id
}

// MaxNodes returns the most scene nodes the program's evaluator walks, taken
// from the MAX_NODES define of its stages. Zero means the stages set no bound.
func (p *Program) MaxNodes() int {
	if p == nil {
		return 0
	}
	return p.maxNodes
}

// CheckNodes returns an error wrapping [ErrCapacity] if a scene of numNodes
// nodes does not fit the program's evaluator.
func (p *Program) CheckNodes(numNodes int) error {
	if limit := p.MaxNodes(); limit > 0 && numNodes > limit {
		return fmt.Errorf("%w: scene has %d nodes, program evaluates at most %d", ErrCapacity, numNodes, limit)
	}
	return nil
}

// Bind makes the program current.
func (p *Program) Bind() error {
	if p.ID() == 0 {
		return errZeroProgram
	}
	p.gl.UseProgram(p.id)
	return nil
}

// UniformLocation returns the cached location of the named uniform. Uniforms
// optimized out by the driver have location -1; setting them is a no-op.
func (p *Program) UniformLocation(name string) int32 {
	loc, ok := p.locs[name]
	if !ok {
		loc = p.gl.UniformLocation(p.id, name)
		p.locs[name] = loc
	}
	return loc
}

// SetUniform1i sets an int uniform of the bound program.
func (p *Program) SetUniform1i(name string, v int32) {
	p.gl.Uniform1i(p.UniformLocation(name), v)
}

// SetUniform1f sets a float uniform of the bound program.
func (p *Program) SetUniform1f(name string, v float32) {
	p.gl.Uniform1f(p.UniformLocation(name), v)
}

// SetUniform2f sets a vec2 uniform of the bound program.
func (p *Program) SetUniform2f(name string, x, y float32) {
	p.gl.Uniform2f(p.UniformLocation(name), x, y)
}

// SetUniform3f sets a vec3 uniform of the bound program.
func (p *Program) SetUniform3f(name string, x, y, z float32) {
	p.gl.Uniform3f(p.UniformLocation(name), x, y, z)
}

// Delete releases the GL program. Deleting twice is a no-op.
func (p *Program) Delete() {
	if p.ID() == 0 {
		return
	}
	p.gl.DeleteProgram(p.id)
	p.id = 0
	clear(p.locs)
}
