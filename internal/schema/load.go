package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Load compiles the schema at path: a single .cue file or a directory
// holding one CUE package.
func Load(path string) (*Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	ctx := cuecontext.New()

	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		return Compile(ctx.CompileBytes(src, cue.Filename(path)))
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path, Package: "_"})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load schema: no CUE instances in %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load schema: %w", inst.Err)
	}
	return Compile(ctx.BuildInstance(inst))
}

// Parse compiles a schema from source text.
func Parse(src, filename string) (*Schema, error) {
	return Compile(cuecontext.New().CompileString(src, cue.Filename(filename)))
}
