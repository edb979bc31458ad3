package plan

import (
	"chschema/internal/errdefs"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Transform is one pure plan rewrite. Apply receives a private copy and
// returns the plan to hand to the next stage.
type Transform struct {
	Name  string
	Apply func(*Plan) (*Plan, error)
}

// Pipeline runs transforms in order between planning and rendering.
type Pipeline []Transform

// Run applies every transform in order. The first failure aborts the run
// with a TransformError naming its stage. The result is re-validated and
// its risk summary recomputed.
func (pl Pipeline) Run(in *Plan) (*Plan, error) {
	current := in
	for _, t := range pl {
		out, err := t.Apply(current.Clone())
		if err != nil {
			return nil, &errdefs.TransformError{Stage: t.Name, Err: err}
		}
		if out == nil {
			return nil, &errdefs.TransformError{Stage: t.Name, Err: errors.New("transform returned no plan")}
		}
		for _, op := range out.Operations {
			if !Known(op.Type) {
				return nil, &errdefs.TransformError{Stage: t.Name, Err: fmt.Errorf("unknown operation type %q at %s", op.Type, op.Key)}
			}
		}
		if err := out.Validate(); err != nil {
			return nil, &errdefs.TransformError{Stage: t.Name, Err: err}
		}
		current = out
	}
	result := current.Clone()
	result.RiskSummary = Summarize(result.Operations)
	return result, nil
}

// Exclude drops operations whose key matches any of the glob patterns.
// A pattern without a sub-object part also matches the object's
// sub-operations, so "table:db.tmp_*" excludes their alters too.
func Exclude(patterns []string) Transform {
	return Transform{
		Name: "exclude",
		Apply: func(p *Plan) (*Plan, error) {
			for _, pattern := range patterns {
				if _, err := path.Match(pattern, ""); err != nil {
					return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
				}
			}
			kept := p.Operations[:0]
			for _, op := range p.Operations {
				if !excluded(op.Key, patterns) {
					kept = append(kept, op)
				}
			}
			p.Operations = kept
			return p, nil
		},
	}
}

func excluded(key string, patterns []string) bool {
	objectKey := key
	if parts := strings.SplitN(key, ":", 3); len(parts) == 3 {
		objectKey = parts[0] + ":" + parts[1]
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, key); ok {
			return true
		}
		if ok, _ := path.Match(pattern, objectKey); ok {
			return true
		}
	}
	return false
}

// MaxRisk fails when any operation is riskier than limit.
func MaxRisk(limit RiskLevel) Transform {
	return Transform{
		Name: "max_risk",
		Apply: func(p *Plan) (*Plan, error) {
			var over []string
			for _, op := range p.Operations {
				if op.Risk.Rank() > limit.Rank() {
					over = append(over, fmt.Sprintf("%s (%s)", op.Key, op.Risk))
				}
			}
			if len(over) > 0 {
				return nil, fmt.Errorf("%d operation(s) exceed max risk %s: %s", len(over), limit, strings.Join(over, ", "))
			}
			return p, nil
		},
	}
}
