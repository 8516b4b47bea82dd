package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/entitydb/internal/paths"
	"github.com/mesh-intelligence/entitydb/internal/sqlite"
	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// testEnv is an isolated config and data directory pair.
type testEnv struct {
	t         *testing.T
	configDir string
	dataDir   string
}

type runResult struct {
	code   int
	stdout string
	stderr string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{t: t, configDir: t.TempDir(), dataDir: t.TempDir()}
}

func (e *testEnv) run(args ...string) runResult {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...)
	code := Run(context.Background(), full, &stdout, &stderr)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (e *testEnv) mustRun(args ...string) runResult {
	e.t.Helper()
	r := e.run(args...)
	require.Equalf(e.t, exitSuccess, r.code, "entitydb %v: %s", args, r.stderr)
	return r
}

func parseJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

func TestInit(t *testing.T) {
	tests := []struct {
		name  string
		check func(t *testing.T, e *testEnv)
	}{
		{
			name: "creates config and database",
			check: func(t *testing.T, e *testEnv) {
				r := e.mustRun("init")
				assert.Contains(t, r.stdout, e.dataDir)
				assert.FileExists(t, paths.ConfigFile(e.configDir))
				assert.FileExists(t, filepath.Join(e.dataDir, sqlite.DatabaseFile))
			},
		},
		{
			name: "pins explicit data dir in config",
			check: func(t *testing.T, e *testEnv) {
				e.mustRun("init")
				raw, err := os.ReadFile(paths.ConfigFile(e.configDir))
				require.NoError(t, err)
				assert.Contains(t, string(raw), "data_dir:")
				assert.Contains(t, string(raw), e.dataDir)
				assert.Contains(t, string(raw), "backend: sqlite")
			},
		},
		{
			name: "is idempotent",
			check: func(t *testing.T, e *testEnv) {
				e.mustRun("init")
				before, err := os.ReadFile(paths.ConfigFile(e.configDir))
				require.NoError(t, err)
				e.mustRun("init")
				after, err := os.ReadFile(paths.ConfigFile(e.configDir))
				require.NoError(t, err)
				assert.Equal(t, before, after)
			},
		},
		{
			name: "json output",
			check: func(t *testing.T, e *testEnv) {
				r := e.mustRun("--json", "init")
				out := parseJSON[map[string]string](t, r.stdout)
				assert.Equal(t, e.dataDir, out["dataDir"])
				assert.Equal(t, filepath.Join(e.dataDir, sqlite.DatabaseFile), out["database"])
			},
		},
		{
			name: "unknown backend in config is a user error",
			check: func(t *testing.T, e *testEnv) {
				require.NoError(t, os.WriteFile(paths.ConfigFile(e.configDir), []byte("backend: dolt\n"), 0o644))
				r := e.run("init")
				assert.Equal(t, exitUserError, r.code)
				assert.Contains(t, r.stderr, "Error:")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, newTestEnv(t))
		})
	}
}

func TestVersion(t *testing.T) {
	r := newTestEnv(t).mustRun("version")
	assert.Contains(t, r.stdout, "entitydb v")
	assert.Contains(t, r.stdout, modulePath)
}

func TestTypeCommands(t *testing.T) {
	tests := []struct {
		name  string
		check func(t *testing.T, e *testEnv)
	}{
		{
			name: "create and get by name",
			check: func(t *testing.T, e *testEnv) {
				r := e.mustRun("--json", "type", "create", "Person", "--color", "#336699",
					"--prop", "name:text!", "--prop", "age:number")
				created := parseJSON[types.EntityType](t, r.stdout)
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, "Person", created.Name)
				require.Len(t, created.Properties, 2)
				assert.True(t, created.Properties[0].Required)

				got := parseJSON[types.EntityType](t, e.mustRun("--json", "type", "get", "Person").stdout)
				assert.Equal(t, created.ID, got.ID)
				assert.Equal(t, "#336699", got.Color)
			},
		},
		{
			name: "reference target resolved by name",
			check: func(t *testing.T, e *testEnv) {
				person := parseJSON[types.EntityType](t, e.mustRun("--json", "type", "create", "Person").stdout)
				book := parseJSON[types.EntityType](t, e.mustRun("--json", "type", "create", "Book",
					"--prop", "authors:refs:Person").stdout)
				def := book.Property("authors")
				require.NotNil(t, def)
				assert.Equal(t, person.ID, def.TargetTypeID())
				assert.True(t, def.Multiple())
			},
		},
		{
			name: "reference to unknown type fails validation",
			check: func(t *testing.T, e *testEnv) {
				r := e.run("type", "create", "Book", "--prop", "author:ref:Nobody")
				assert.Equal(t, exitUserError, r.code)
			},
		},
		{
			name: "duplicate name is a user error",
			check: func(t *testing.T, e *testEnv) {
				e.mustRun("type", "create", "Person")
				r := e.run("type", "create", "Person")
				assert.Equal(t, exitUserError, r.code)
				assert.Contains(t, r.stderr, "Error:")
			},
		},
		{
			name: "bad property spec is a user error",
			check: func(t *testing.T, e *testEnv) {
				r := e.run("type", "create", "Person", "--prop", "age:integer")
				assert.Equal(t, exitUserError, r.code)
			},
		},
		{
			name: "list in insertion order",
			check: func(t *testing.T, e *testEnv) {
				e.mustRun("type", "create", "B")
				e.mustRun("type", "create", "A")
				all := parseJSON[[]types.EntityType](t, e.mustRun("--json", "type", "list").stdout)
				require.Len(t, all, 2)
				assert.Equal(t, "B", all[0].Name)
				assert.Equal(t, "A", all[1].Name)
			},
		},
		{
			name: "empty list prints json array",
			check: func(t *testing.T, e *testEnv) {
				r := e.mustRun("--json", "type", "list")
				assert.Equal(t, "[]", strings.TrimSpace(r.stdout))
			},
		},
		{
			name: "rename add-prop remove-prop",
			check: func(t *testing.T, e *testEnv) {
				e.mustRun("type", "create", "Person", "--prop", "name:text")
				e.mustRun("type", "rename", "Person", "Human")
				e.mustRun("type", "add-prop", "Human", "status:enum:active|retired")
				e.mustRun("type", "remove-prop", "Human", "name")

				got := parseJSON[types.EntityType](t, e.mustRun("--json", "type", "get", "Human").stdout)
				require.Len(t, got.Properties, 1)
				assert.Equal(t, "status", got.Properties[0].Name)
				assert.Equal(t, []string{"active", "retired"}, got.Properties[0].Type.Values)

				r := e.run("type", "add-prop", "Human", "status:text")
				assert.Equal(t, exitUserError, r.code)
			},
		},
		{
			name: "get missing type",
			check: func(t *testing.T, e *testEnv) {
				r := e.run("type", "get", "Nobody")
				assert.Equal(t, exitUserError, r.code)
				assert.Contains(t, r.stderr, "not found")
			},
		},
		{
			name: "delete with instances needs force",
			check: func(t *testing.T, e *testEnv) {
				e.mustRun("type", "create", "Person")
				e.mustRun("instance", "create", "Person", "--set", "name=Ada")

				r := e.run("type", "delete", "Person")
				assert.Equal(t, exitUserError, r.code)

				count := e.mustRun("type", "count", "Person")
				assert.Contains(t, count.stdout, "1")

				e.mustRun("type", "delete", "Person", "--force")
				usage := parseJSON[types.StorageUsage](t, e.mustRun("--json", "usage").stdout)
				assert.Equal(t, types.StorageUsage{}, usage)
			},
		},
		{
			name: "wrong argument count is a user error",
			check: func(t *testing.T, e *testEnv) {
				r := e.run("type", "get")
				assert.Equal(t, exitUserError, r.code)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, newTestEnv(t))
		})
	}
}

func TestInstanceCommands(t *testing.T) {
	// seed creates Person and Book types plus two people.
	seed := func(t *testing.T, e *testEnv) (ada, alan types.EntityInstance) {
		t.Helper()
		e.mustRun("type", "create", "Person", "--prop", "name:text!", "--prop", "age:number",
			"--prop", "active:boolean")
		e.mustRun("type", "create", "Book", "--prop", "title:text", "--prop", "author:ref:Person")
		ada = parseJSON[types.EntityInstance](t, e.mustRun("--json", "instance", "create", "Person",
			"--set", "name=Ada", "--set", "age=36", "--set", "active=true").stdout)
		alan = parseJSON[types.EntityInstance](t, e.mustRun("--json", "instance", "create", "Person",
			"--set", "name=Alan", "--set", "age=41", "--set", "active=true").stdout)
		return ada, alan
	}

	tests := []struct {
		name  string
		check func(t *testing.T, e *testEnv)
	}{
		{
			name: "create coerces declared kinds",
			check: func(t *testing.T, e *testEnv) {
				ada, _ := seed(t, e)
				assert.Equal(t, types.ValueNumber, ada.Properties["age"].Kind())
				n, _ := ada.Properties["age"].AsNumber()
				assert.Equal(t, 36.0, n)
				b, _ := ada.Properties["active"].AsBool()
				assert.True(t, b)
				assert.Equal(t, ada.Metadata.Created, ada.Metadata.Modified)
			},
		},
		{
			name: "create rejects uncoercible value",
			check: func(t *testing.T, e *testEnv) {
				seed(t, e)
				r := e.run("instance", "create", "Person", "--set", "age=old")
				assert.Equal(t, exitUserError, r.code)
			},
		},
		{
			name: "create for unknown type",
			check: func(t *testing.T, e *testEnv) {
				r := e.run("instance", "create", "Ghost", "--set", "x=1")
				assert.Equal(t, exitUserError, r.code)
			},
		},
		{
			name: "get and list",
			check: func(t *testing.T, e *testEnv) {
				ada, alan := seed(t, e)
				got := parseJSON[types.EntityInstance](t, e.mustRun("--json", "instance", "get", ada.ID).stdout)
				assert.Equal(t, ada.ID, got.ID)
				assert.Equal(t, "Ada", got.Properties["name"].String())

				list := parseJSON[[]types.EntityInstance](t, e.mustRun("--json", "instance", "list", "Person").stdout)
				require.Len(t, list, 2)
				assert.Equal(t, ada.ID, list[0].ID)
				assert.Equal(t, alan.ID, list[1].ID)

				text := e.mustRun("instance", "get", ada.ID)
				assert.Contains(t, text.stdout, "Ada")
			},
		},
		{
			name: "update merges and unsets",
			check: func(t *testing.T, e *testEnv) {
				ada, _ := seed(t, e)
				got := parseJSON[types.EntityInstance](t, e.mustRun("--json", "instance", "update", ada.ID,
					"--set", "age=37", "--unset", "active").stdout)
				n, _ := got.Properties["age"].AsNumber()
				assert.Equal(t, 37.0, n)
				assert.Equal(t, "Ada", got.Properties["name"].String())
				_, has := got.Properties["active"]
				assert.False(t, has)
				assert.Greater(t, got.Metadata.Modified, ada.Metadata.Modified)
			},
		},
		{
			name: "update without changes is a user error",
			check: func(t *testing.T, e *testEnv) {
				ada, _ := seed(t, e)
				r := e.run("instance", "update", ada.ID)
				assert.Equal(t, exitUserError, r.code)
			},
		},
		{
			name: "delete then delete again",
			check: func(t *testing.T, e *testEnv) {
				ada, _ := seed(t, e)
				e.mustRun("instance", "delete", ada.ID)
				r := e.run("instance", "delete", ada.ID)
				assert.Equal(t, exitUserError, r.code)
				r = e.run("instance", "get", ada.ID)
				assert.Equal(t, exitUserError, r.code)
			},
		},
		{
			name: "search is case-insensitive",
			check: func(t *testing.T, e *testEnv) {
				ada, _ := seed(t, e)
				list := parseJSON[[]types.EntityInstance](t, e.mustRun("--json", "instance", "search", "ADA").stdout)
				require.Len(t, list, 1)
				assert.Equal(t, ada.ID, list[0].ID)

				r := e.run("instance", "search", "  ")
				assert.Equal(t, exitUserError, r.code)
			},
		},
		{
			name: "filter by coerced value",
			check: func(t *testing.T, e *testEnv) {
				_, alan := seed(t, e)
				list := parseJSON[[]types.EntityInstance](t, e.mustRun("--json", "instance", "filter", "Person",
					"--where", "age=41").stdout)
				require.Len(t, list, 1)
				assert.Equal(t, alan.ID, list[0].ID)
			},
		},
		{
			name: "group by property",
			check: func(t *testing.T, e *testEnv) {
				seed(t, e)
				groups := parseJSON[[]types.InstanceGroup](t, e.mustRun("--json", "instance", "group", "Person", "active").stdout)
				require.Len(t, groups, 1)
				assert.Equal(t, "true", groups[0].Key)
				assert.Len(t, groups[0].Instances, 2)
			},
		},
		{
			name: "stats",
			check: func(t *testing.T, e *testEnv) {
				seed(t, e)
				stats := parseJSON[types.PropertyStats](t, e.mustRun("--json", "instance", "stats", "Person", "active").stdout)
				assert.Equal(t, 2, stats.Count)
				assert.Equal(t, 1, stats.Distinct)
				assert.Equal(t, 2, stats.Histogram["true"])

				text := e.mustRun("instance", "stats", "Person", "active")
				assert.Contains(t, text.stdout, "distinct: 1")
			},
		},
		{
			name: "related follows references",
			check: func(t *testing.T, e *testEnv) {
				ada, _ := seed(t, e)
				book := parseJSON[types.EntityInstance](t, e.mustRun("--json", "instance", "create", "Book",
					"--set", "title=Notes", "--set", "author="+ada.ID).stdout)
				related := parseJSON[map[string][]types.EntityInstance](t, e.mustRun("--json", "instance", "related", book.ID).stdout)
				require.Len(t, related["author"], 1)
				assert.Equal(t, ada.ID, related["author"][0].ID)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, newTestEnv(t))
		})
	}
}

func TestExportImport(t *testing.T) {
	src := newTestEnv(t)
	src.mustRun("type", "create", "Person", "--prop", "name:text")
	src.mustRun("instance", "create", "Person", "--set", "name=Ada")
	dir := t.TempDir()
	src.mustRun("export", dir)
	for _, name := range types.StandardCollectionNames {
		assert.FileExists(t, filepath.Join(dir, sqlite.ExportFile(name)))
	}

	dst := newTestEnv(t)
	stats := parseJSON[map[string]types.ImportStats](t, dst.mustRun("--json", "import", dir).stdout)
	assert.Equal(t, 1, stats[types.EntityTypesCollection].Imported)
	assert.Equal(t, 1, stats[types.EntityInstancesCollection].Imported)

	usage := parseJSON[types.StorageUsage](t, dst.mustRun("--json", "usage").stdout)
	assert.Equal(t, types.StorageUsage{TypeCount: 1, InstanceCount: 1}, usage)

	r := dst.mustRun("usage")
	assert.Contains(t, r.stdout, "instances: 1")
}

func TestParsePropSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    types.PropertyDefinition
		wantErr bool
	}{
		{name: "text", spec: "title:text", want: types.PropertyDefinition{Name: "title", Type: types.TextType()}},
		{name: "required number", spec: "age:number!", want: types.PropertyDefinition{Name: "age", Type: types.NumberType(), Required: true}},
		{name: "bool alias", spec: "done:bool", want: types.PropertyDefinition{Name: "done", Type: types.BooleanType()}},
		{name: "enum", spec: "s:enum:a|b", want: types.PropertyDefinition{Name: "s", Type: types.EnumOf("a", "b")}},
		{
			name: "ref",
			spec: "author:ref:Person",
			want: types.PropertyDefinition{
				Name:      "author",
				Type:      types.ReferenceTo("Person"),
				Reference: &types.Reference{TypeID: "Person"},
			},
		},
		{
			name: "refs",
			spec: "tags:refs:Tag",
			want: types.PropertyDefinition{
				Name:      "tags",
				Type:      types.ReferenceTo("Tag"),
				Reference: &types.Reference{TypeID: "Tag", Multiple: true},
			},
		},
		{name: "missing kind", spec: "title", wantErr: true},
		{name: "empty name", spec: ":text", wantErr: true},
		{name: "unknown kind", spec: "x:blob", wantErr: true},
		{name: "ref without target", spec: "x:ref", wantErr: true},
		{name: "argument on scalar", spec: "x:text:long", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePropSpec(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, exitUserError, exitCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAssignment(t *testing.T) {
	k, v, err := parseAssignment("name=a=b")
	require.NoError(t, err)
	assert.Equal(t, "name", k)
	assert.Equal(t, "a=b", v)

	k, v, err = parseAssignment("note=")
	require.NoError(t, err)
	assert.Equal(t, "note", k)
	assert.Empty(t, v)

	for _, bad := range []string{"name", "=value"} {
		_, _, err := parseAssignment(bad)
		assert.Error(t, err, bad)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: types.ErrNotFound, want: exitUserError},
		{name: "duplicate", err: types.ErrDuplicateName, want: exitUserError},
		{name: "validation", err: types.ErrValidationFailed, want: exitUserError},
		{name: "storage", err: types.ErrStorageUnavailable, want: exitSysError},
		{name: "explicit user", err: userErrorf("bad"), want: exitUserError},
		{name: "explicit system", err: systemError(types.ErrNotFound), want: exitSysError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
