package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"alarmkit/internal/alarm"
	logx "alarmkit/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "alarms.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func testAlarm(id, label, clock string) alarm.AdvancedAlarm {
	return alarm.AdvancedAlarm{
		ID:        id,
		Label:     label,
		Time:      alarm.MustClockTime(clock),
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestFileStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	a := testAlarm("alarm:1", "wake", "07:00")
	if err := st.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Create(ctx, a); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate create = %v, want ErrExists", err)
	}

	got, ok, err := st.Get(ctx, "alarm:1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Label != "wake" || got.Time.String() != "07:00" {
		t.Fatalf("unexpected alarm: %+v", got)
	}

	got.Time = alarm.MustClockTime("07:30")
	if err := st.Update(ctx, "alarm:1", got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := st.Update(ctx, "alarm:missing", got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing = %v, want ErrNotFound", err)
	}

	all, err := st.Load(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("Load: %v (%d alarms)", err, len(all))
	}
	if all[0].Time.String() != "07:30" {
		t.Fatalf("update not visible: %+v", all[0])
	}

	if err := st.Delete(ctx, "alarm:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, "alarm:1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing = %v, want ErrNotFound", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	st := openTestStore(t, dir)
	if err := st.Create(ctx, testAlarm("alarm:1", "wake", "06:45")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.SetKV(ctx, "scheduling:config", `{"timeZone":"UTC"}`); err != nil {
		t.Fatalf("SetKV: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2 := openTestStore(t, dir)
	defer st2.Close()

	all, err := st2.Load(ctx)
	if err != nil || len(all) != 1 || all[0].ID != "alarm:1" {
		t.Fatalf("reload failed: %v %+v", err, all)
	}
	v, ok, err := st2.GetKV(ctx, "scheduling:config")
	if err != nil || !ok || v != `{"timeZone":"UTC"}` {
		t.Fatalf("kv reload failed: ok=%v v=%q err=%v", ok, v, err)
	}
}

func TestFileStoreReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	a := testAlarm("alarm:1", "wake", "07:00")
	a.Rules = []alarm.ConditionalRule{{
		Condition: alarm.Condition{Kind: alarm.CondDayOfWeek, Weekdays: []int{1}},
		Action:    alarm.Action{Kind: alarm.ActionSkipAlarm},
		Active:    true,
	}}
	if err := st.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _, _ := st.Get(ctx, "alarm:1")
	got.Rules[0].Active = false

	again, _, _ := st.Get(ctx, "alarm:1")
	if !again.Rules[0].Active {
		t.Fatal("mutating a returned alarm must not affect the stored value")
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("disabled driver should return (nil, nil), got %v %v", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should error")
	}
}
