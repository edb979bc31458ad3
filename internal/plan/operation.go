// Package plan computes the ordered set of DDL operations that turns one
// canonical definition set into another.
package plan

import (
	"chschema/internal/errdefs"
	"chschema/internal/schema"
	"fmt"
)

type OpType string

const (
	CreateDatabase         OpType = "create_database"
	CreateTable            OpType = "create_table"
	CreateView             OpType = "create_view"
	CreateMaterializedView OpType = "create_materialized_view"

	RenameTable            OpType = "rename_table"
	RenameView             OpType = "rename_view"
	RenameMaterializedView OpType = "rename_materialized_view"

	AddColumn     OpType = "alter_table_add_column"
	ModifyColumn  OpType = "alter_table_modify_column"
	CommentColumn OpType = "alter_table_comment_column"
	RenameColumn  OpType = "alter_table_rename_column"
	DropColumn    OpType = "alter_table_drop_column"

	ModifyTTL OpType = "alter_table_modify_ttl"
	RemoveTTL OpType = "alter_table_remove_ttl"

	AddSetting    OpType = "alter_table_add_setting"
	ModifySetting OpType = "alter_table_modify_setting"
	ResetSetting  OpType = "alter_table_reset_setting"

	AddIndex         OpType = "alter_table_add_index"
	ModifyIndex      OpType = "alter_table_modify_index"
	DropIndex        OpType = "alter_table_drop_index"
	MaterializeIndex OpType = "alter_table_materialize_index"

	ModifyOrderBy     OpType = "alter_table_modify_order_by"
	ModifyPartitionBy OpType = "alter_table_modify_partition_by"
	ModifyComment     OpType = "alter_table_modify_comment"

	ReplaceView                OpType = "replace_view"
	AlterMaterializedViewQuery OpType = "alter_materialized_view_query"
	RecreateMaterializedView   OpType = "recreate_materialized_view"

	DropTable            OpType = "drop_table"
	DropView             OpType = "drop_view"
	DropMaterializedView OpType = "drop_materialized_view"
)

// Operation is one logical schema change. The payload fields that apply
// depend on Type; the renderer reads nothing else.
type Operation struct {
	Type   OpType          `json:"type"`
	Key    string          `json:"key"`
	Risk   RiskLevel       `json:"risk"`
	Object schema.Identity `json:"object"`

	// From is the previous qualified name of a renamed object, or the
	// previous name of a renamed column.
	From string `json:"from,omitempty"`

	// Definition is the full target definition for creates, view
	// replacements and materialized view recreation.
	Definition *schema.Definition `json:"definition,omitempty"`

	// Column and its position for column operations. An added column with
	// an empty After goes FIRST.
	Column *schema.Column `json:"column,omitempty"`
	After  string         `json:"after,omitempty"`

	Setting string `json:"setting,omitempty"`
	Value   string `json:"value,omitempty"`

	Index *schema.Index `json:"index,omitempty"`

	// Expr is the new TTL, order-by, partition-by, comment or query.
	Expr string `json:"expr,omitempty"`

	// position orders column operations of one table by declared position.
	position int
}

// RenameSuggestion is a dropped and an added column with identical
// signatures. It is reported, never applied.
type RenameSuggestion struct {
	Object string `json:"object"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type RiskSummary struct {
	Safe    int `json:"safe"`
	Caution int `json:"caution"`
	Danger  int `json:"danger"`
}

func (s RiskSummary) String() string {
	return fmt.Sprintf("safe=%d caution=%d danger=%d", s.Safe, s.Caution, s.Danger)
}

// Max returns the highest level present, or Safe for an empty summary.
func (s RiskSummary) Max() RiskLevel {
	switch {
	case s.Danger > 0:
		return Danger
	case s.Caution > 0:
		return Caution
	default:
		return Safe
	}
}

type Plan struct {
	Operations        []Operation        `json:"operations"`
	RenameSuggestions []RenameSuggestion `json:"renameSuggestions"`
	RiskSummary       RiskSummary        `json:"riskSummary"`
}

func (p *Plan) Empty() bool {
	return p == nil || len(p.Operations) == 0
}

// Clone returns a copy whose slices can be modified independently.
func (p *Plan) Clone() *Plan {
	out := &Plan{RiskSummary: p.RiskSummary}
	out.Operations = append([]Operation(nil), p.Operations...)
	out.RenameSuggestions = append([]RenameSuggestion(nil), p.RenameSuggestions...)
	return out
}

func Summarize(ops []Operation) RiskSummary {
	var s RiskSummary
	for _, op := range ops {
		switch op.Risk {
		case Safe:
			s.Safe++
		case Caution:
			s.Caution++
		default:
			s.Danger++
		}
	}
	return s
}

// Validate checks that no two operations target the same key.
func (p *Plan) Validate() error {
	seen := make(map[string]OpType, len(p.Operations))
	for _, op := range p.Operations {
		if op.Key == "" {
			return &errdefs.PlanningConflictError{
				Reason: errdefs.ConflictDuplicateKey,
				Object: string(op.Type),
				Detail: "operation has no key",
			}
		}
		if prev, ok := seen[op.Key]; ok {
			return &errdefs.PlanningConflictError{
				Reason: errdefs.ConflictDuplicateKey,
				Object: op.Key,
				Detail: fmt.Sprintf("targeted by both %s and %s", prev, op.Type),
			}
		}
		seen[op.Key] = op.Type
	}
	return nil
}

// subKey builds kind:db.name:subkind:subkey.
func subKey(id schema.Identity, subkind, name string) string {
	if name == "" {
		return id.Key() + ":" + subkind
	}
	return id.Key() + ":" + subkind + ":" + name
}

func databaseKey(db string) string {
	return "database:" + db
}
