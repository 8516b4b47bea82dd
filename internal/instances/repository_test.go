package instances

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/entitydb/internal/entitytypes"
	"github.com/mesh-intelligence/entitydb/internal/sqlite"
	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// fixedClock returns a clock frozen at start that tests can move.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

type fixture struct {
	repo  *Repository
	reg   *entitytypes.Registry
	clock *fixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := sqlite.NewBackend(nil)
	require.NoError(t, b.Open(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { _ = b.Close() })

	clock := &fixedClock{t: time.UnixMilli(1_700_000_000_000)}
	repo := NewRepository(b, nil)
	repo.SetClock(clock.now)
	return &fixture{repo: repo, reg: entitytypes.NewRegistry(b, nil), clock: clock}
}

func (f *fixture) createType(t *testing.T, name string, props ...types.PropertyDefinition) *types.EntityType {
	t.Helper()
	et, err := f.reg.CreateType(context.Background(), types.TypeInput{Name: name, Properties: props})
	require.NoError(t, err)
	return et
}

func ids(insts []types.EntityInstance) []string {
	out := []string{}
	for _, i := range insts {
		out = append(out, i.ID)
	}
	return out
}

var valueCmp = cmp.Comparer(func(a, b types.Value) bool { return a.Equal(b) })

func TestRepository(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		check func(t *testing.T, f *fixture)
	}{
		{
			name: "create stamps id and timestamps",
			check: func(t *testing.T, f *fixture) {
				person := f.createType(t, "Person")
				inst, err := f.repo.CreateInstance(ctx, person.ID, types.Properties{
					"name": types.Text("Ada"), "age": types.Number(36),
				})
				require.NoError(t, err)
				assert.NotEmpty(t, inst.ID)
				assert.Equal(t, person.ID, inst.TypeID)
				assert.Equal(t, int64(1_700_000_000_000), inst.Metadata.Created)
				assert.Equal(t, inst.Metadata.Created, inst.Metadata.Modified)

				got, err := f.repo.GetInstance(ctx, inst.ID)
				require.NoError(t, err)
				assert.Empty(t, cmp.Diff(inst, got, valueCmp))
			},
		},
		{
			name: "create requires an existing type",
			check: func(t *testing.T, f *fixture) {
				_, err := f.repo.CreateInstance(ctx, "no-such-type", types.Properties{"a": types.Text("x")})
				assert.ErrorIs(t, err, types.ErrNotFound)

				all, err := f.repo.GetAllInstances(ctx)
				require.NoError(t, err)
				assert.Empty(t, all)
			},
		},
		{
			name: "instances by type are exact",
			check: func(t *testing.T, f *fixture) {
				person := f.createType(t, "Person")
				book := f.createType(t, "Book")
				var want []string
				for i := 0; i < 3; i++ {
					p, err := f.repo.CreateInstance(ctx, person.ID, nil)
					require.NoError(t, err)
					want = append(want, p.ID)
					_, err = f.repo.CreateInstance(ctx, book.ID, nil)
					require.NoError(t, err)
				}
				require.NoError(t, f.repo.DeleteInstance(ctx, want[1]))
				want = append(want[:1], want[2:]...)

				got, err := f.repo.GetInstancesByType(ctx, person.ID)
				require.NoError(t, err)
				assert.ElementsMatch(t, want, ids(got))
				for _, inst := range got {
					assert.Equal(t, person.ID, inst.TypeID)
					assert.NotNil(t, inst.Properties)
				}

				none, err := f.repo.GetInstancesByType(ctx, "nobody")
				require.NoError(t, err)
				assert.Empty(t, none)
			},
		},
		{
			name: "updates merge and advance modified",
			check: func(t *testing.T, f *fixture) {
				person := f.createType(t, "Person")
				inst, err := f.repo.CreateInstance(ctx, person.ID, types.Properties{"keep": types.Bool(true)})
				require.NoError(t, err)
				created := inst.Metadata.Created

				first, err := f.repo.UpdateProperties(ctx, inst.ID, types.Properties{"a": types.Number(1)})
				require.NoError(t, err)
				second, err := f.repo.UpdateProperties(ctx, inst.ID, types.Properties{"b": types.Number(2)})
				require.NoError(t, err)

				assert.True(t, second.Properties["a"].Equal(types.Number(1)))
				assert.True(t, second.Properties["b"].Equal(types.Number(2)))
				assert.True(t, second.Properties["keep"].Equal(types.Bool(true)))
				assert.Equal(t, created, second.Metadata.Created)
				assert.Greater(t, first.Metadata.Modified, created)
				assert.Greater(t, second.Metadata.Modified, first.Metadata.Modified)
				assert.GreaterOrEqual(t, second.Metadata.Modified, second.Metadata.Created)

				f.clock.t = f.clock.t.Add(time.Hour)
				later, err := f.repo.UpdateInstance(ctx, inst.ID, types.Properties{"a": types.Text("one"), "b": {}})
				require.NoError(t, err)
				assert.Equal(t, f.clock.t.UnixMilli(), later.Metadata.Modified)
				assert.True(t, later.Properties["a"].Equal(types.Text("one")))
				_, hasB := later.Properties["b"]
				assert.False(t, hasB, "zero value removes the key")

				stored, err := f.repo.GetInstance(ctx, inst.ID)
				require.NoError(t, err)
				assert.Empty(t, cmp.Diff(later, stored, valueCmp))
			},
		},
		{
			name: "writing back the same properties only advances modified",
			check: func(t *testing.T, f *fixture) {
				person := f.createType(t, "Person")
				inst, err := f.repo.CreateInstance(ctx, person.ID, types.Properties{
					"name": types.Text("Ada"), "born": types.Date(-4_000_000_000_000), "friends": types.Refs("x", "y"),
				})
				require.NoError(t, err)

				again, err := f.repo.UpdateInstance(ctx, inst.ID, inst.Properties)
				require.NoError(t, err)
				assert.Empty(t, cmp.Diff(inst.Properties, again.Properties, valueCmp))
				assert.Equal(t, inst.Metadata.Created, again.Metadata.Created)
				assert.Greater(t, again.Metadata.Modified, inst.Metadata.Modified)
			},
		},
		{
			name: "update and delete of absent ids",
			check: func(t *testing.T, f *fixture) {
				_, err := f.repo.UpdateProperties(ctx, "missing", types.Properties{"a": types.Text("x")})
				assert.ErrorIs(t, err, types.ErrNotFound)
				assert.ErrorIs(t, f.repo.DeleteInstance(ctx, "missing"), types.ErrNotFound)
			},
		},
		{
			name: "delete removes from lookups",
			check: func(t *testing.T, f *fixture) {
				person := f.createType(t, "Person")
				inst, err := f.repo.CreateInstance(ctx, person.ID, nil)
				require.NoError(t, err)
				require.NoError(t, f.repo.DeleteInstance(ctx, inst.ID))

				got, err := f.repo.GetInstance(ctx, inst.ID)
				require.NoError(t, err)
				assert.Nil(t, got)
				byType, err := f.repo.GetInstancesByType(ctx, person.ID)
				require.NoError(t, err)
				assert.NotContains(t, ids(byType), inst.ID)
			},
		},
		{
			name: "search is a case-insensitive substring scan",
			check: func(t *testing.T, f *fixture) {
				note := f.createType(t, "Note")
				other := f.createType(t, "Other")
				foo, err := f.repo.CreateInstance(ctx, note.ID, types.Properties{"description": types.Text("FooBar")})
				require.NoError(t, err)
				_, err = f.repo.CreateInstance(ctx, note.ID, types.Properties{"description": types.Text("baz")})
				require.NoError(t, err)
				num, err := f.repo.CreateInstance(ctx, other.ID, types.Properties{"count": types.Number(1500)})
				require.NoError(t, err)

				got, err := f.repo.SearchInstances(ctx, "foo")
				require.NoError(t, err)
				assert.Equal(t, []string{foo.ID}, ids(got))

				got, err = f.repo.SearchInstances(ctx, "50")
				require.NoError(t, err)
				assert.Equal(t, []string{num.ID}, ids(got))

				got, err = f.repo.SearchInstances(ctx, "nothing matches")
				require.NoError(t, err)
				assert.Empty(t, got)
			},
		},
		{
			name: "by property value uses exact equality",
			check: func(t *testing.T, f *fixture) {
				person := f.createType(t, "Person")
				a, err := f.repo.CreateInstance(ctx, person.ID, types.Properties{"age": types.Number(36)})
				require.NoError(t, err)
				_, err = f.repo.CreateInstance(ctx, person.ID, types.Properties{"age": types.Text("36")})
				require.NoError(t, err)
				_, err = f.repo.CreateInstance(ctx, person.ID, types.Properties{})
				require.NoError(t, err)

				got, err := f.repo.GetInstancesByPropertyValue(ctx, person.ID, "age", types.Number(36))
				require.NoError(t, err)
				assert.Equal(t, []string{a.ID}, ids(got))
			},
		},
		{
			name: "person scenario instance count",
			check: func(t *testing.T, f *fixture) {
				person := f.createType(t, "Person",
					types.PropertyDefinition{Name: "name", Type: types.TextType()},
					types.PropertyDefinition{Name: "age", Type: types.NumberType()},
				)
				ada, err := f.repo.CreateInstance(ctx, person.ID, types.Properties{
					"name": types.Text("Ada"), "age": types.Number(36),
				})
				require.NoError(t, err)

				n, err := f.reg.GetTypeInstanceCount(ctx, person.ID)
				require.NoError(t, err)
				assert.Equal(t, 1, n)

				require.NoError(t, f.repo.DeleteInstance(ctx, ada.ID))
				n, err = f.reg.GetTypeInstanceCount(ctx, person.ID)
				require.NoError(t, err)
				assert.Zero(t, n)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, newFixture(t))
		})
	}
}
