package schema

import (
	"fmt"
	"reflect"
	"strings"
)

type Kind string

const (
	KindTable            Kind = "table"
	KindView             Kind = "view"
	KindMaterializedView Kind = "materialized_view"
)

// Rank orders kinds in canonical output.
func (k Kind) Rank() int {
	switch k {
	case KindTable:
		return 0
	case KindView:
		return 1
	case KindMaterializedView:
		return 2
	default:
		return 3
	}
}

func (k Kind) Valid() bool {
	return k.Rank() < 3
}

// KeyPrefix is the short object kind used in operation keys.
func (k Kind) KeyPrefix() string {
	if k == KindMaterializedView {
		return "mv"
	}
	return string(k)
}

// Definition is one declared schema object. Kind selects which of the
// kind-specific fields apply.
type Definition struct {
	Kind        Kind   `json:"kind" yaml:"kind"`
	Database    string `json:"database" yaml:"database"`
	Name        string `json:"name" yaml:"name"`
	Comment     string `json:"comment,omitempty" yaml:"comment,omitempty"`
	RenamedFrom string `json:"renamedFrom,omitempty" yaml:"renamed_from,omitempty"`

	// table, and materialized view without a target table
	Columns     []Column          `json:"columns,omitempty" yaml:"columns,omitempty"`
	Engine      string            `json:"engine,omitempty" yaml:"engine,omitempty"`
	PrimaryKey  []string          `json:"primaryKey,omitempty" yaml:"primary_key,omitempty"`
	OrderBy     []string          `json:"orderBy,omitempty" yaml:"order_by,omitempty"`
	PartitionBy string            `json:"partitionBy,omitempty" yaml:"partition_by,omitempty"`
	TTL         string            `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Settings    map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
	Indexes     []Index           `json:"indexes,omitempty" yaml:"indexes,omitempty"`

	// view and materialized view
	Query     string   `json:"query,omitempty" yaml:"query,omitempty"`
	DependsOn []string `json:"dependsOn,omitempty" yaml:"depends_on,omitempty"`

	// materialized view
	To       string `json:"to,omitempty" yaml:"to,omitempty"`
	Populate bool   `json:"populate,omitempty" yaml:"populate,omitempty"`
}

type Column struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Nullable    bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	DefaultKind string `json:"defaultKind,omitempty" yaml:"default_kind,omitempty"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Codec       string `json:"codec,omitempty" yaml:"codec,omitempty"`
	Comment     string `json:"comment,omitempty" yaml:"comment,omitempty"`
	RenamedFrom string `json:"renamedFrom,omitempty" yaml:"renamed_from,omitempty"`
}

// Index is a data-skipping index.
type Index struct {
	Name        string `json:"name" yaml:"name"`
	Expression  string `json:"expression" yaml:"expression"`
	Type        string `json:"type" yaml:"type"`
	Granularity int    `json:"granularity,omitempty" yaml:"granularity,omitempty"`
	Materialize bool   `json:"materialize,omitempty" yaml:"materialize,omitempty"`
}

// Identity is the (kind, database, name) triple that identifies a definition.
type Identity struct {
	Kind     Kind   `json:"kind"`
	Database string `json:"database"`
	Name     string `json:"name"`
}

func (d Definition) Identity() Identity {
	return Identity{Kind: d.Kind, Database: d.Database, Name: d.Name}
}

// QualifiedName returns database.name.
func (d Definition) QualifiedName() string {
	return d.Database + "." + d.Name
}

func (id Identity) QualifiedName() string {
	return id.Database + "." + id.Name
}

// Key renders the identity as kind:database.name.
func (id Identity) Key() string {
	return id.Kind.KeyPrefix() + ":" + id.QualifiedName()
}

func (id Identity) String() string {
	return fmt.Sprintf("%s %s", id.Kind, id.QualifiedName())
}

// Less orders identities by kind, then database, then name.
func (id Identity) Less(other Identity) bool {
	if id.Kind != other.Kind {
		return id.Kind.Rank() < other.Kind.Rank()
	}
	if id.Database != other.Database {
		return id.Database < other.Database
	}
	return id.Name < other.Name
}

// Column returns the named column.
func (d Definition) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Index returns the named index.
func (d Definition) Index(name string) (Index, bool) {
	for _, idx := range d.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// HasInnerEngine reports whether a materialized view stores its rows in an
// implicit inner table instead of a TO target.
func (d Definition) HasInnerEngine() bool {
	return d.Kind == KindMaterializedView && d.To == ""
}

// ParseQualified splits "db.name" into its parts. A bare name takes
// defaultDatabase.
func ParseQualified(ref, defaultDatabase string) (database, name string) {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, "."); i > 0 {
		return ref[:i], ref[i+1:]
	}
	return defaultDatabase, ref
}

// Clone returns a deep copy so callers can normalize without aliasing.
func (d Definition) Clone() Definition {
	out := d
	out.Columns = append([]Column(nil), d.Columns...)
	out.PrimaryKey = append([]string(nil), d.PrimaryKey...)
	out.OrderBy = append([]string(nil), d.OrderBy...)
	out.Indexes = append([]Index(nil), d.Indexes...)
	out.DependsOn = append([]string(nil), d.DependsOn...)
	if d.Settings != nil {
		out.Settings = make(map[string]string, len(d.Settings))
		for k, v := range d.Settings {
			out.Settings[k] = v
		}
	}
	return out
}

// Equal reports whether two definitions are identical field by field.
func Equal(a, b Definition) bool {
	return reflect.DeepEqual(a, b)
}
