package schemaless

import (
	"errors"
	"testing"
)

type event struct {
	rowKey int64
	column string
	value  any
}

func TestHandlerDispatch(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	var calls []event
	ks.Handler(func(rowKey int64, column string, value any) error {
		calls = append(calls, event{rowKey, column, value})
		return nil
	})

	row := must(ks.CreateRow(nil))
	ok(t, row.Set("name", "huey"))
	ok(t, row.Set("kind", "cat"))
	ok(t, row.Set("name", "huey-2"))

	deepEqual(t, calls, []event{
		{row.Key(), "name", "huey"},
		{row.Key(), "kind", "cat"},
		{row.Key(), "name", "huey-2"},
	})
}

func TestHandlerFiresPerColumn(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	var calls []event
	ks.Handler(func(rowKey int64, column string, value any) error {
		calls = append(calls, event{rowKey, column, value})
		return nil
	})

	// A bulk write dispatches one signal per column, in column name order.
	row := must(ks.CreateRow(map[string]any{"name": "huey", "kind": "cat"}))
	deepEqual(t, calls, []event{
		{row.Key(), "kind", "cat"},
		{row.Key(), "name", "huey"},
	})
}

func TestHandlerOrderAndStop(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	var calls []string
	ks.Handler(func(rowKey int64, column string, value any) error {
		calls = append(calls, "first")
		if value == "stop" {
			return ErrStopDispatch
		}
		return nil
	})
	ks.Handler(func(rowKey int64, column string, value any) error {
		calls = append(calls, "second")
		return nil
	})

	row := must(ks.CreateRow(nil))
	ok(t, row.Set("name", "huey"))
	deepEqual(t, calls, []string{"first", "second"})

	// ErrStopDispatch consumes the event but keeps the write.
	calls = nil
	ok(t, row.Set("name", "stop"))
	deepEqual(t, calls, []string{"first"})
	deepEqual(t, getv(t, ks.Row(row.Key()), "name"), any("stop"))
}

func TestHandlerErrorAbortsWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *DB) {
		ks := db.KeySpace("users")
		ok(t, ks.Create())

		boom := errors.New("boom")
		ks.Handler(func(rowKey int64, column string, value any) error {
			return boom
		})

		row := must(ks.CreateRow(nil))
		err := row.Set("name", "huey")
		if !errors.Is(err, boom) {
			t.Errorf("** got %v, wanted boom", err)
		}
		deepEqual(t, row.Key(), int64(0))
		deepEqual(t, must(ks.EntryCount()), 0)
	})
}

func TestHandlerUnbind(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	var calls int
	sub := ks.Handler(func(rowKey int64, column string, value any) error {
		calls++
		return nil
	})
	var otherCalls int
	ks.Handler(func(rowKey int64, column string, value any) error {
		otherCalls++
		return nil
	})

	row := must(ks.CreateRow(nil))
	ok(t, row.Set("name", "huey"))
	deepEqual(t, calls, 1)

	// Unbinding removes exactly this registration; twice is a no-op.
	sub.Unbind()
	sub.Unbind()
	ok(t, row.Set("name", "huey-2"))
	deepEqual(t, calls, 1)
	deepEqual(t, otherCalls, 2)
}

func TestHandlerWritesJoinTheTransaction(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	ks.Handler(func(rowKey int64, column string, value any) error {
		if column != "name" {
			return nil
		}
		return ks.Row(rowKey).Set("greeting", "hello, "+value.(string))
	})

	row := must(ks.CreateRow(nil))
	ok(t, row.Set("name", "huey"))
	fresh := must(ks.GetRow(row.Key()))
	deepEqual(t, getv(t, fresh, "greeting"), any("hello, huey"))

	// The derived write rides the outer transaction: if the enclosing block
	// fails, both disappear.
	boom := errors.New("boom")
	before := must(ks.EntryCount())
	err := db.Atomic(func() error {
		if err := ks.Row(row.Key()).Set("name", "mickey"); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Errorf("** got %v, wanted boom", err)
	}
	deepEqual(t, must(ks.EntryCount()), before)
	deepEqual(t, getv(t, must(ks.GetRow(row.Key())), "greeting"), any("hello, huey"))
}

func TestHandlerReceivesCanonicalValues(t *testing.T) {
	db := setup(t)
	ks := db.KeySpace("users")
	ok(t, ks.Create())

	var got any
	ks.Handler(func(rowKey int64, column string, value any) error {
		got = value
		return nil
	})

	row := must(ks.CreateRow(nil))
	ok(t, row.Set("profile", map[string]int{"age": 7}))
	deepEqual(t, got, any(map[string]any{"age": int64(7)}))
}

func TestHandlersAreScopedToTheDatabase(t *testing.T) {
	db1 := setupMem(t)
	db2 := setupMem(t)
	ks1 := db1.KeySpace("users")
	ks2 := db2.KeySpace("users")
	ok(t, ks1.Create())
	ok(t, ks2.Create())

	var calls int
	ks1.Handler(func(rowKey int64, column string, value any) error {
		calls++
		return nil
	})

	must(ks2.CreateRow(map[string]any{"name": "huey"}))
	deepEqual(t, calls, 0)

	must(ks1.CreateRow(map[string]any{"name": "huey"}))
	deepEqual(t, calls, 1)
}

func TestHandlersAreScopedToTheKeySpace(t *testing.T) {
	db := setupMem(t)
	users := db.KeySpace("users")
	pets := db.KeySpace("pets")
	ok(t, users.Create())
	ok(t, pets.Create())

	var calls int
	users.Handler(func(rowKey int64, column string, value any) error {
		calls++
		return nil
	})

	must(pets.CreateRow(map[string]any{"name": "nuggie"}))
	deepEqual(t, calls, 0)

	must(users.CreateRow(map[string]any{"name": "charlie"}))
	deepEqual(t, calls, 1)
}

func TestHandlerUpdatesIndexedColumn(t *testing.T) {
	db := setup(t)
	byName := NewIndex("profile", "$.name")
	ks := db.KeySpace("users", byName)
	ok(t, ks.Create())

	// Derived writes go through the same pipeline, including index updates.
	ks.Handler(func(rowKey int64, column string, value any) error {
		if column != "name" {
			return nil
		}
		return ks.Row(rowKey).Set("profile", map[string]any{"name": value})
	})

	row := must(ks.CreateRow(nil))
	ok(t, row.Set("name", "charlie"))
	deepEqual(t, must(byName.AllItems()), []IndexItem{{row.Key(), "charlie"}})
	deepEqual(t, collectKeys(t, byName.Query("charlie")), []int64{row.Key()})
}
