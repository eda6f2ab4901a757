package schemaless

import "testing"

func TestRowCacheIsWriteThrough(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	huey := must(ks.CreateRow(nil))
	ok(t, huey.Set("fur", "white"))
	deepEqual(t, getv(t, huey, "fur"), any("white"))

	// Another handle writes a newer version; the first handle keeps serving
	// its cached value until asked to reload.
	other := ks.Row(huey.Key())
	ok(t, other.Set("fur", "gray"))
	deepEqual(t, getv(t, huey, "fur"), any("white"))

	fresh := must(ks.GetRow(huey.Key()))
	deepEqual(t, getv(t, fresh, "fur"), any("gray"))

	must(huey.MultiGet("fur"))
	deepEqual(t, getv(t, huey, "fur"), any("gray"))
}

func TestRowCachesMisses(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	row := must(ks.CreateRow(map[string]any{"name": "huey"}))
	handle := ks.Row(row.Key())
	isnil(t, getv(t, handle, "kind"))

	ok(t, ks.Row(row.Key()).Set("kind", "cat"))
	isnil(t, getv(t, handle, "kind")) // cached nil sticks
	deepEqual(t, getv(t, ks.Row(row.Key()), "kind"), any("cat"))
}

func TestUnsavedRow(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	row := must(ks.CreateRow(nil))
	deepEqual(t, row.Key(), int64(0))
	isnil(t, getv(t, row, "name"))
	deepEqual(t, must(ks.EntryCount()), 0)

	ok(t, row.Set("name", "huey"))
	deepEqual(t, row.Key(), int64(1))
}

func TestMultiGetPreloads(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	row := must(ks.CreateRow(map[string]any{"name": "huey", "kind": "cat", "fur": "white"}))

	handle := ks.Row(row.Key())
	data := must(handle.MultiGet("name", "fur", "missing"))
	deepEqual(t, data, map[string]any{"name": "huey", "fur": "white"})

	all := must(ks.Row(row.Key()).MultiGet())
	deepEqual(t, all, map[string]any{"name": "huey", "kind": "cat", "fur": "white"})
}

func TestDeleteColumns(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	row := must(ks.CreateRow(nil))
	ok(t, row.Set("name", "huey"))
	ok(t, row.Set("name", "huey-2"))
	ok(t, row.Set("kind", "cat"))
	deepEqual(t, must(ks.EntryCount()), 3)

	// Every stored version of the column goes away.
	ok(t, row.DeleteColumns("name"))
	deepEqual(t, must(ks.EntryCount()), 1)

	fresh := must(ks.GetRow(row.Key()))
	isnil(t, getv(t, fresh, "name"))
	deepEqual(t, getv(t, fresh, "kind"), any("cat"))
	isnil(t, getv(t, row, "name")) // cache dropped on the writing handle too
}

func TestDeleteRow(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	huey := must(ks.CreateRow(map[string]any{"name": "huey", "kind": "cat"}))
	mickey := must(ks.CreateRow(map[string]any{"name": "mickey"}))

	ok(t, huey.Delete())
	deepEqual(t, must(ks.EntryCount()), 1)
	deepEqual(t, collectKeys(t, ks.All()), []int64{mickey.Key()})

	fresh := must(ks.GetRow(huey.Key()))
	deepEqual(t, fresh.Cached(), map[string]any{})
}

func TestRowValuesRoundTrip(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	row := must(ks.CreateRow(map[string]any{
		"age":    7,
		"weight": 4.5,
		"alive":  true,
		"tags":   []string{"cat", "indoor"},
		"stats":  map[string]any{"naps": 12},
	}))

	fresh := must(ks.GetRow(row.Key()))
	deepEqual(t, getv(t, fresh, "age"), any(int64(7)))
	deepEqual(t, getv(t, fresh, "weight"), any(4.5))
	deepEqual(t, getv(t, fresh, "alive"), any(true))
	deepEqual(t, getv(t, fresh, "tags"), any([]any{"cat", "indoor"}))
	deepEqual(t, getv(t, fresh, "stats"), any(map[string]any{"naps": int64(12)}))
}
