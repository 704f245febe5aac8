package writer

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/receipts/internal/model"
)

//go:embed workstreams.cue
var workstreamsSchema string

// ErrSchema marks a workstreams file that does not match the schema.
var ErrSchema = errors.New("workstreams schema violation")

var (
	schemaOnce sync.Once
	schemaMu   sync.Mutex
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(workstreamsSchema)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile workstreams schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#WorkstreamsFile"))
		if !schemaDef.Exists() {
			schemaErr = errors.New("workstreams schema: #WorkstreamsFile not defined")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// ValidateWorkstreams checks f against the embedded CUE schema: version tag,
// non-empty ids and titles, content-id shaped member ids, and at most ten
// receipts per workstream. Partitioning is checked separately.
func ValidateWorkstreams(f model.WorkstreamsFile) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode workstreams: %w", err)
	}

	// cue.Context is not safe for concurrent use.
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
