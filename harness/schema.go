package harness

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaErr  error
	schema     cue.Value

	// cue.Context is not safe for concurrent use
	cueMu  sync.Mutex
	cueCtx *cue.Context
)

func loadSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		cueCtx = cuecontext.New()
		v := cueCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("failed to compile scenario schema: %w", err)
			return
		}
		schema = v.LookupPath(cue.ParsePath("#Scenario"))
	})
	return schema, schemaErr
}

// validateSchema checks raw scenario YAML against the CUE schema.
func validateSchema(filename string, data []byte) error {
	s, err := loadSchema()
	if err != nil {
		return err
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	cueMu.Lock()
	defer cueMu.Unlock()
	v := cueCtx.BuildFile(file)
	if err := v.Err(); err != nil {
		return fmt.Errorf("failed to build scenario value: %w", err)
	}
	if err := s.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema violation: %s", errors.Details(err, nil))
	}
	return nil
}
