// Package schema validates the persisted JSON documents against embedded CUE
// schemas before the engine trusts them. The schemas double as the
// authoritative description of the wire contract.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed period.cue
var periodCUE string

//go:embed bidders.cue
var biddersCUE string

var (
	compileOnce sync.Once
	periodDef   cue.Value
	biddersDef  cue.Value
	compileErr  error
)

// compile builds the schema values once per process. The schemas are
// embedded, so a compile failure is a programming error surfaced on first
// use rather than a panic at init.
func compile() error {
	compileOnce.Do(func() {
		ctx := cuecontext.New()

		period := ctx.CompileString(periodCUE, cue.Filename("period.cue"))
		if err := period.Err(); err != nil {
			compileErr = fmt.Errorf("compile period schema: %w", err)
			return
		}
		periodDef = period.LookupPath(cue.ParsePath("#Period"))
		if err := periodDef.Err(); err != nil {
			compileErr = fmt.Errorf("lookup #Period: %w", err)
			return
		}

		bidders := ctx.CompileString(biddersCUE, cue.Filename("bidders.cue"))
		if err := bidders.Err(); err != nil {
			compileErr = fmt.Errorf("compile bidders schema: %w", err)
			return
		}
		biddersDef = bidders.LookupPath(cue.ParsePath("#Bidders"))
		if err := biddersDef.Err(); err != nil {
			compileErr = fmt.Errorf("lookup #Bidders: %w", err)
		}
	})
	return compileErr
}

// ValidatePeriod checks raw current-period.json (or archive) bytes against
// the period schema.
func ValidatePeriod(data []byte) error {
	if err := compile(); err != nil {
		return err
	}
	return validate(periodDef, "period document", data)
}

// ValidateBidders checks raw bidders.json bytes against the bidders schema.
func ValidateBidders(data []byte) error {
	if err := compile(); err != nil {
		return err
	}
	return validate(biddersDef, "bidders document", data)
}

// validate unifies a JSON document with a schema definition. JSON is a
// subset of CUE, so the document compiles directly.
func validate(def cue.Value, what string, data []byte) error {
	doc := def.Context().CompileBytes(data, cue.Filename(what))
	if err := doc.Err(); err != nil {
		return fmt.Errorf("parse %s: %w", what, err)
	}

	unified := def.Unify(doc)
	if err := unified.Err(); err != nil {
		return fmt.Errorf("%s does not match schema: %w", what, err)
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s does not match schema: %w", what, err)
	}
	return nil
}
