package plan

import "fmt"

type RiskLevel string

const (
	Safe    RiskLevel = "safe"
	Caution RiskLevel = "caution"
	Danger  RiskLevel = "danger"
)

func (r RiskLevel) Rank() int {
	switch r {
	case Safe:
		return 0
	case Caution:
		return 1
	default:
		return 2
	}
}

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case Safe, Caution, Danger:
		return RiskLevel(s), nil
	}
	return "", fmt.Errorf("unknown risk level %q (want safe, caution or danger)", s)
}

// RiskPolicy holds the configurable parts of classification.
type RiskPolicy struct {
	// ResetSettingIsDanger treats resetting a table setting to its default
	// as potentially destructive (e.g. dropping a TTL-related setting).
	ResetSettingIsDanger bool
}

var riskByType = map[OpType]RiskLevel{
	CreateDatabase:             Safe,
	CreateTable:                Safe,
	CreateView:                 Safe,
	CreateMaterializedView:     Safe,
	RenameTable:                Caution,
	RenameView:                 Caution,
	RenameMaterializedView:     Caution,
	AddColumn:                  Safe,
	ModifyColumn:               Caution,
	CommentColumn:              Safe,
	RenameColumn:               Caution,
	DropColumn:                 Danger,
	ModifyTTL:                  Caution,
	RemoveTTL:                  Caution,
	AddSetting:                 Safe,
	ModifySetting:              Caution,
	ResetSetting:               Caution,
	AddIndex:                   Safe,
	ModifyIndex:                Caution,
	DropIndex:                  Caution,
	MaterializeIndex:           Caution,
	ModifyOrderBy:              Caution,
	ModifyPartitionBy:          Caution,
	ModifyComment:              Safe,
	ReplaceView:                Caution,
	AlterMaterializedViewQuery: Caution,
	RecreateMaterializedView:   Danger,
	DropTable:                  Danger,
	DropView:                   Danger,
	DropMaterializedView:       Danger,
}

// Classify maps an operation type to its risk level. Unknown types are
// treated as the worst case.
func Classify(t OpType, policy RiskPolicy) RiskLevel {
	if t == ResetSetting && policy.ResetSettingIsDanger {
		return Danger
	}
	level, ok := riskByType[t]
	if !ok {
		return Danger
	}
	return level
}

// Known reports whether t is one of the operation types the planner emits.
func Known(t OpType) bool {
	_, ok := riskByType[t]
	return ok
}

// Rationale explains why an operation is risky and what to do about it.
type Rationale struct {
	Reason         string
	Impact         string
	Recommendation string
}

var rationales = map[OpType]Rationale{
	DropTable: {
		Reason:         "drops a table",
		Impact:         "all rows stored in the table are deleted",
		Recommendation: "back up the table or confirm it is unused before applying",
	},
	DropView: {
		Reason:         "drops a view",
		Impact:         "queries reading from the view will fail",
		Recommendation: "confirm no consumer still reads from the view",
	},
	DropMaterializedView: {
		Reason:         "drops a materialized view",
		Impact:         "rows stop flowing to the target and an inner table is deleted with its data",
		Recommendation: "confirm the pipeline is retired and the data is no longer needed",
	},
	DropColumn: {
		Reason:         "drops a column",
		Impact:         "the column's data is deleted from every part",
		Recommendation: "declare renamed_from if this is a rename, otherwise back up the column",
	},
	RecreateMaterializedView: {
		Reason:         "drops and recreates a materialized view",
		Impact:         "rows inserted between the drop and the create are not processed; an inner table loses its data",
		Recommendation: "pause ingestion or backfill the target after applying",
	},
	ResetSetting: {
		Reason:         "resets a table setting to the server default",
		Impact:         "merge, TTL or storage behavior of the table may change",
		Recommendation: "check the server default before applying",
	},
}

// Explain returns the rationale for a risky operation type. Types without
// a specific rationale get a generic one.
func Explain(t OpType) Rationale {
	if r, ok := rationales[t]; ok {
		return r
	}
	if !Known(t) {
		return Rationale{
			Reason:         fmt.Sprintf("unknown operation type %q", t),
			Impact:         "the effect of the statement cannot be classified",
			Recommendation: "inspect the statement before applying",
		}
	}
	return Rationale{
		Reason:         string(t),
		Impact:         "the statement changes existing objects",
		Recommendation: "review the statement before applying",
	}
}
