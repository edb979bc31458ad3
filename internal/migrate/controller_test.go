package migrate

import (
	"chschema/internal/artifact"
	"chschema/internal/errdefs"
	"chschema/internal/journal"
	"chschema/internal/lock"
	"chschema/internal/plan"
	"chschema/internal/render"
	"chschema/internal/schema"
	"chschema/internal/storage"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeExecutor struct {
	statements []string
	failOn     string
	onExecute  func(stmt string)
}

func (f *fakeExecutor) Execute(_ context.Context, stmt string) error {
	if f.onExecute != nil {
		f.onExecute(stmt)
	}
	if f.failOn != "" && strings.Contains(stmt, f.failOn) {
		return errors.New("Code: 60. DB::Exception: table does not exist")
	}
	f.statements = append(f.statements, stmt)
	return nil
}

type env struct {
	fs        afero.Fs
	artifacts *artifact.Store
	journal   *journal.File
	exec      *fakeExecutor
	ctrl      *Controller
	spans     *tracetest.SpanRecorder
}

var fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	fsys := afero.NewMemMapFs()
	e := &env{
		fs:        fsys,
		artifacts: artifact.NewStore(storage.NewFSStore(fsys, "/migrations")),
		journal:   journal.NewFile(fsys, "/state/journal.json", lock.NewMutex()),
		exec:      &fakeExecutor{},
		spans:     tracetest.NewSpanRecorder(),
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(e.spans))
	e.ctrl = NewController(Options{
		Artifacts:   e.artifacts,
		Journal:     e.journal,
		Executor:    e.exec,
		ToolVersion: "test",
		Now:         func() time.Time { return fixedNow },
		Tracer:      provider.Tracer("test"),
	})
	return e
}

func createDatabase(db string) plan.Operation {
	return plan.Operation{Type: plan.CreateDatabase, Key: "database:" + db, Risk: plan.Safe, Object: schema.Identity{Database: db, Name: db}}
}

func dropTable(db, name string) plan.Operation {
	return plan.Operation{Type: plan.DropTable, Key: "table:" + db + "." + name, Risk: plan.Danger, Object: schema.Identity{Kind: schema.KindTable, Database: db, Name: name}}
}

// write stores a migration generated at the given minute.
func (e *env) write(t *testing.T, minute int, slug string, ops ...plan.Operation) string {
	t.Helper()
	p := &plan.Plan{Operations: ops}
	rendered, err := render.New(render.Options{}).RenderPlan(p)
	require.NoError(t, err)
	a, err := artifact.Build(p, rendered, artifact.Meta{
		Slug:        slug,
		GeneratedAt: time.Date(2024, 1, 1, 0, minute, 0, 0, time.UTC),
		ToolVersion: "test",
	})
	require.NoError(t, err)
	_, err = e.artifacts.Write(context.Background(), a)
	require.NoError(t, err)
	return a.Name
}

func (e *env) journaled(t *testing.T) []string {
	t.Helper()
	entries, err := e.journal.Entries(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names
}

func TestExecuteAppliesPendingInOrder(t *testing.T) {
	e := newEnv(t)
	second := e.write(t, 2, "second", createDatabase("b"))
	first := e.write(t, 1, "first", createDatabase("a"))

	res, err := e.ctrl.Execute(context.Background(), ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, res.Applied)
	assert.Equal(t, []string{
		"CREATE DATABASE IF NOT EXISTS `a`",
		"CREATE DATABASE IF NOT EXISTS `b`",
	}, e.exec.statements)

	entries, err := e.journal.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	content, err := e.artifacts.Read(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, artifact.Checksum(content), entries[0].Checksum)
	assert.True(t, fixedNow.Equal(entries[0].AppliedAt))
	assert.Equal(t, "test", entries[0].ToolVersion)

	// nothing left to do
	res, err = e.ctrl.Execute(context.Background(), ExecuteOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Len(t, e.exec.statements, 2)
}

func TestExecuteBlocksDestructiveMigrations(t *testing.T) {
	e := newEnv(t)
	safe := e.write(t, 1, "safe", createDatabase("a"))
	risky := e.write(t, 2, "risky", createDatabase("c"), dropTable("a", "old"))

	_, err := e.ctrl.Execute(context.Background(), ExecuteOptions{})
	var blocked *errdefs.DestructiveBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, errdefs.CodeDestructiveBlock, errdefs.CodeOf(err))
	assert.Equal(t, risky, blocked.Migration)
	assert.Equal(t, []string{safe}, blocked.Applied)
	require.Len(t, blocked.Operations, 1)
	op := blocked.Operations[0]
	assert.Equal(t, "drop_table", op.Type)
	assert.Equal(t, "table:a.old", op.Key)
	assert.Equal(t, "danger", op.Risk)
	assert.NotEmpty(t, op.Reason)
	assert.NotEmpty(t, op.Impact)
	assert.NotEmpty(t, op.Recommendation)

	// no statement of the blocked migration reached the executor
	assert.Equal(t, []string{"CREATE DATABASE IF NOT EXISTS `a`"}, e.exec.statements)
	assert.Equal(t, []string{safe}, e.journaled(t))

	res, err := e.ctrl.Execute(context.Background(), ExecuteOptions{AllowDestructive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{risky}, res.Applied)
	assert.Contains(t, e.exec.statements, "DROP TABLE IF EXISTS `a`.`old` SYNC")
	assert.Equal(t, []string{safe, risky}, e.journaled(t))
}

func TestExecuteDetectsTamperedArtifacts(t *testing.T) {
	e := newEnv(t)
	first := e.write(t, 1, "first", createDatabase("a"))
	_, err := e.ctrl.Execute(context.Background(), ExecuteOptions{})
	require.NoError(t, err)

	path := "/migrations/" + first
	content, err := afero.ReadFile(e.fs, path)
	require.NoError(t, err)
	tampered := strings.Replace(string(content), "`a`", "`z`", 1)
	require.NoError(t, afero.WriteFile(e.fs, path, []byte(tampered), 0o644))
	e.write(t, 2, "second", createDatabase("b"))
	executed := len(e.exec.statements)

	_, err = e.ctrl.Execute(context.Background(), ExecuteOptions{AllowDestructive: true})
	var mismatch *errdefs.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Len(t, mismatch.Drifts, 1)
	assert.Equal(t, first, mismatch.Drifts[0].Migration)
	assert.Equal(t, artifact.Checksum([]byte(tampered)), mismatch.Drifts[0].Actual)
	assert.Len(t, e.exec.statements, executed)

	status, err := e.ctrl.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, StateDrifted, status[0].State)
	assert.Equal(t, StatePending, status[1].State)
}

func TestExecuteResumesAfterFailure(t *testing.T) {
	e := newEnv(t)
	m1 := e.write(t, 1, "one", createDatabase("a"))
	m2 := e.write(t, 2, "two", createDatabase("broken"))
	m3 := e.write(t, 3, "three", createDatabase("c"))

	e.exec.failOn = "broken"
	res, err := e.ctrl.Execute(context.Background(), ExecuteOptions{})
	var execErr *errdefs.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, m2, execErr.Migration)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS `broken`", execErr.Statement)
	assert.Equal(t, []string{m1}, execErr.Applied)
	assert.Equal(t, []string{m1}, res.Applied)
	assert.Equal(t, []string{m1}, e.journaled(t))

	e.exec.failOn = ""
	res, err = e.ctrl.Execute(context.Background(), ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{m2, m3}, res.Applied)
	assert.Equal(t, []string{m1, m2, m3}, e.journaled(t))
	assert.Equal(t, []string{
		"CREATE DATABASE IF NOT EXISTS `a`",
		"CREATE DATABASE IF NOT EXISTS `broken`",
		"CREATE DATABASE IF NOT EXISTS `c`",
	}, e.exec.statements)
}

func TestExecuteObservesCancellationBetweenMigrations(t *testing.T) {
	e := newEnv(t)
	m1 := e.write(t, 1, "one", createDatabase("a"))
	e.write(t, 2, "two", createDatabase("b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.exec.onExecute = func(string) { cancel() }

	res, err := e.ctrl.Execute(ctx, ExecuteOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{m1}, res.Applied)
	assert.Equal(t, []string{m1}, e.journaled(t))
}

func TestStatusReportsMissingArtifacts(t *testing.T) {
	e := newEnv(t)
	m1 := e.write(t, 1, "one", createDatabase("a"))
	_, err := e.ctrl.Execute(context.Background(), ExecuteOptions{})
	require.NoError(t, err)
	require.NoError(t, e.fs.Remove("/migrations/"+m1))
	m2 := e.write(t, 2, "two", createDatabase("b"))

	status, err := e.ctrl.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, MigrationStatus{Name: m1, State: StateMissing, RecordedChecksum: status[0].RecordedChecksum, AppliedAt: status[0].AppliedAt}, status[0])
	assert.Equal(t, m2, status[1].Name)
	assert.Equal(t, StatePending, status[1].State)

	// a missing artifact does not block execution
	res, err := e.ctrl.Execute(context.Background(), ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{m2}, res.Applied)
}

func TestPendingHasNoSideEffects(t *testing.T) {
	e := newEnv(t)
	m1 := e.write(t, 1, "risky", createDatabase("a"), dropTable("a", "old"))

	pending, err := e.ctrl.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m1, pending[0].Name)
	assert.Equal(t, 2, pending[0].Operations)
	assert.Equal(t, plan.RiskSummary{Safe: 1, Danger: 1}, pending[0].Risk)
	require.Len(t, pending[0].Destructive, 1)
	assert.Equal(t, "table:a.old", pending[0].Destructive[0].Key)

	assert.Empty(t, e.exec.statements)
	assert.Empty(t, e.journaled(t))
}

func TestExecuteRecordsSpans(t *testing.T) {
	e := newEnv(t)
	e.write(t, 1, "one", createDatabase("a"))

	_, err := e.ctrl.Execute(context.Background(), ExecuteOptions{})
	require.NoError(t, err)

	var names []string
	for _, span := range e.spans.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"migrate.apply", "migrate.execute"}, names)
}
