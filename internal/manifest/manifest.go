package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/rio/internal/bits"
	"github.com/roach88/rio/internal/check"
	"github.com/roach88/rio/internal/dlayer"
	"github.com/roach88/rio/internal/hrir"
	"github.com/roach88/rio/internal/lower"
)

//go:embed schema.cue
var schemaSrc string

// Error codes reported by the loader.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeBuildFailed = "E005" // CUE build failed
	ErrCodeSchema      = "E006" // Manifest does not satisfy the schema
	ErrCodeInvalid     = "E007" // Decoded manifest failed validation
)

// LoadError is a manifest loading failure with a CUE position when one is
// known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Manifest is a decoded, validated machine manifest.
type Manifest struct {
	Machine Machine             `json:"machine" validate:"required"`
	Program *Program            `json:"program,omitempty"`
	Actors  *Actors             `json:"actors,omitempty"`
	Expect  []check.Expectation `json:"expect"`

	// Dir is the directory relative paths in the manifest resolve against.
	Dir string `json:"-"`
}

// Machine sizes the bit store.
type Machine struct {
	Bits     int   `json:"bits" validate:"gte=1,lte=65536"`
	Ancillas int   `json:"ancillas" validate:"gte=0,lte=65536"`
	Seed     []int `json:"seed" validate:"dive,gte=0"`
}

// Program is a program given as send operations to be lowered.
type Program struct {
	Name     string          `json:"name" validate:"required"`
	Strict   bool            `json:"strict"`
	Sends    []lower.SendOp  `json:"sends"`
	Inherits []lower.Inherit `json:"inherits"`
}

// Actors lists actor definition files and the messages to inject.
type Actors struct {
	Sources []string  `json:"sources" validate:"dive,required"`
	Ticks   int       `json:"ticks" validate:"gte=0,lte=100000"`
	Sends   []Message `json:"sends" validate:"dive"`
}

// Message is one injected actor message.
type Message struct {
	Actor   string `json:"actor" validate:"required"`
	Event   string `json:"event" validate:"required"`
	Payload string `json:"payload"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(validateMachine, Machine{})
}

// validateMachine requires seeds to index data bits, not ancillas.
func validateMachine(sl validator.StructLevel) {
	m := sl.Current().Interface().(Machine)
	for i, s := range m.Seed {
		if s >= m.Bits {
			sl.ReportError(s, fmt.Sprintf("Seed[%d]", i), "seed", "ltbits", fmt.Sprint(m.Bits))
		}
	}
}

// Load reads a manifest from a .cue file or from every .cue file in a
// directory.
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path)}
	}

	ctx := cuecontext.New()
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading manifest: %v", err)}
		}
		v := ctx.CompileBytes(src, cue.Filename(path))
		return decode(ctx, v, filepath.Dir(path))
	}

	files, err := filepath.Glob(filepath.Join(path, "*.cue"))
	if err != nil || len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	return decode(ctx, ctx.BuildInstance(instances[0]), path)
}

// Parse decodes a manifest from CUE source. filename is used in positions.
func Parse(src []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()
	return decode(ctx, ctx.CompileBytes(src, cue.Filename(filename)), filepath.Dir(filename))
}

func decode(ctx *cue.Context, v cue.Value, dir string) (*Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("compiling schema: %v", err)}
	}
	unified := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}

	var m Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, validationError(err)
	}
	m.Dir = dir
	return &m, nil
}

// cueError keeps the first CUE error and its position.
func cueError(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}

func validationError(err error) *LoadError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &LoadError{Code: ErrCodeInvalid, Message: err.Error()}
	}
	fe := verrs[0]
	msg := fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("%s fails %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return &LoadError{Code: ErrCodeInvalid, Message: msg}
}

// Width is the total bit store width: data bits plus ancillas.
func (m *Machine) Width() int { return m.Bits + m.Ancillas }

// NewLayer builds a seeded bit store and the D-layer over it.
func (m *Machine) NewLayer(opts ...bits.Option) (*dlayer.Layer, error) {
	layer, err := dlayer.NewWithStore(m.Bits, m.Ancillas, opts...)
	if err != nil {
		return nil, fmt.Errorf("machine: %w", err)
	}
	for _, i := range m.Seed {
		if err := layer.Store().Write(i, true); err != nil {
			return nil, fmt.Errorf("machine: seed bit %d: %w", i, err)
		}
	}
	return layer, nil
}

// Lower turns the program section into cells. A manifest without a program
// lowers to an empty, unnamed program.
func (m *Manifest) Lower(origin string, logger *slog.Logger) (*lower.Result, error) {
	if m.Program == nil {
		return lower.Lower("", nil, nil, lower.Options{Origin: origin, Logger: logger})
	}
	return lower.Lower(m.Program.Name, m.Program.Sends, m.Program.Inherits, lower.Options{
		Strict: m.Program.Strict,
		Origin: origin,
		Logger: logger,
	})
}

// RuntimeOptions returns hrir options wiring the manifest's machine in.
func (m *Manifest) RuntimeOptions(opts ...bits.Option) ([]hrir.Option, error) {
	layer, err := m.Machine.NewLayer(opts...)
	if err != nil {
		return nil, err
	}
	return []hrir.Option{hrir.WithStore(layer.Store()), hrir.WithLayer(layer)}, nil
}

// ActorSources returns the actor definition paths resolved against Dir.
func (m *Manifest) ActorSources() []string {
	if m.Actors == nil {
		return nil
	}
	out := make([]string, len(m.Actors.Sources))
	for i, s := range m.Actors.Sources {
		if filepath.IsAbs(s) {
			out[i] = s
		} else {
			out[i] = filepath.Join(m.Dir, s)
		}
	}
	return out
}
