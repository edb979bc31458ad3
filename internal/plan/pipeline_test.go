package plan

import (
	"chschema/internal/errdefs"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan(t *testing.T) *Plan {
	t.Helper()
	next := canon(t,
		table("app", "users", col("id", "UInt64")),
		table("app", "tmp_import", col("id", "UInt64")),
	)
	p, err := newPlanner().Plan(nil, next, RenameHints{})
	require.NoError(t, err)
	return p
}

func TestPipelineExclude(t *testing.T) {
	in := samplePlan(t)
	out, err := Pipeline{Exclude([]string{"table:app.tmp_*"})}.Run(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"database:app", "table:app.users"}, keys(out))
	assert.Equal(t, RiskSummary{Safe: 2}, out.RiskSummary)
	assert.Len(t, in.Operations, 3, "input plan must not be modified")
}

func TestPipelineMaxRiskNamesStage(t *testing.T) {
	prev := canon(t, table("app", "t", col("a", "UInt64"), col("b", "String")))
	next := canon(t, table("app", "t", col("a", "UInt64")))
	p, err := newPlanner().Plan(prev, next, RenameHints{})
	require.NoError(t, err)

	_, err = Pipeline{Exclude(nil), MaxRisk(Caution)}.Run(p)
	var terr *errdefs.TransformError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "max_risk", terr.Stage)
	assert.Equal(t, errdefs.CodeTransform, errdefs.CodeOf(err))
	assert.Contains(t, err.Error(), "table:app.t:column:b")
}

func TestPipelineRejectsDuplicateKeys(t *testing.T) {
	dup := Transform{
		Name: "dup",
		Apply: func(p *Plan) (*Plan, error) {
			p.Operations = append(p.Operations, p.Operations[0])
			return p, nil
		},
	}
	_, err := Pipeline{dup}.Run(samplePlan(t))
	var terr *errdefs.TransformError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "dup", terr.Stage)

	var conflict *errdefs.PlanningConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, errdefs.ConflictDuplicateKey, conflict.Reason)
}

func TestPipelineRecomputesSummary(t *testing.T) {
	escalate := Transform{
		Name: "escalate",
		Apply: func(p *Plan) (*Plan, error) {
			for i := range p.Operations {
				p.Operations[i].Risk = Caution
			}
			return p, nil
		},
	}
	out, err := Pipeline{escalate}.Run(samplePlan(t))
	require.NoError(t, err)
	assert.Equal(t, RiskSummary{Caution: 3}, out.RiskSummary)
}

func TestPipelineInvalidPattern(t *testing.T) {
	_, err := Pipeline{Exclude([]string{"["})}.Run(samplePlan(t))
	var terr *errdefs.TransformError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "exclude", terr.Stage)
}
