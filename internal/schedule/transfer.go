package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alarmkit/internal/alarm"
	"alarmkit/internal/settings"
	"alarmkit/internal/storage"
	logx "alarmkit/pkg/logx"
)

// SnapshotVersion is the export payload version this build writes.
const SnapshotVersion = "1.0"

// Snapshot is the self-describing full-schedule payload.
type Snapshot struct {
	Version    string                `json:"version"`
	ExportDate time.Time             `json:"exportDate"`
	Alarms     []alarm.AdvancedAlarm `json:"alarms"`
	Settings   settings.Config       `json:"settings"`
	Metadata   SnapshotMetadata      `json:"metadata"`
}

type SnapshotMetadata struct {
	TotalAlarms int    `json:"totalAlarms"`
	ExportedBy  string `json:"exportedBy"`
	Timezone    string `json:"timezone"`
}

// ImportOptions steer per-alarm policy during import.
type ImportOptions struct {
	OverwriteExisting bool `json:"overwriteExisting"`
	PreserveIDs       bool `json:"preserveIds"`
	AdjustTimeZones   bool `json:"adjustTimeZones"`
	SkipInvalid       bool `json:"skipInvalid"`
}

// Transfer serializes the full schedule and replays snapshots back into
// the store.
type Transfer struct {
	store    storage.Store
	settings *settings.Store
	log      logx.Logger
	now      func() time.Time
}

func NewTransfer(store storage.Store, st *settings.Store, log logx.Logger) *Transfer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Transfer{store: store, settings: st, log: log, now: time.Now}
}

// Export produces a complete snapshot of alarms plus the current
// scheduling configuration.
func (t *Transfer) Export(ctx context.Context, exportedBy string) (Snapshot, error) {
	if t.store == nil {
		return Snapshot{}, fmt.Errorf("alarm store is not configured")
	}
	alarms, err := t.store.Load(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load alarms: %w", err)
	}
	cfg := settings.DefaultConfig()
	if t.settings != nil {
		cfg = t.settings.Config()
	}
	return Snapshot{
		Version:    SnapshotVersion,
		ExportDate: t.now().UTC(),
		Alarms:     alarms,
		Settings:   cfg,
		Metadata: SnapshotMetadata{
			TotalAlarms: len(alarms),
			ExportedBy:  exportedBy,
			Timezone:    cfg.TimeZone,
		},
	}, nil
}

// Import replays a snapshot into the store. A payload without an alarms
// array aborts the whole import; per-alarm failures are isolated.
//
// With SkipInvalid unset, any invalid alarm aborts the import before
// anything is persisted; set, invalid alarms become isolated failures.
func (t *Transfer) Import(ctx context.Context, snap Snapshot, opts ImportOptions) BulkResult {
	if t.store == nil {
		return structural("alarm store is not configured")
	}
	if snap.Alarms == nil {
		return structural("import payload has no alarms array")
	}

	if !opts.SkipInvalid {
		for i, a := range snap.Alarms {
			if err := a.Validate(); err != nil {
				return structural(fmt.Sprintf("item %d invalid, nothing imported: %v", i, err))
			}
		}
	}

	existing, err := t.store.Load(ctx)
	if err != nil {
		return structural(fmt.Sprintf("load existing alarms: %v", err))
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[labelTimeKey(a)] = true
	}

	srcLoc, dstLoc := t.importLocations(snap)
	today := alarm.DateOf(t.now())

	var res BulkResult
	for i, a := range snap.Alarms {
		if err := t.importOne(ctx, a, opts, seen, srcLoc, dstLoc, today); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, itemError(i, a.ID, err))
			continue
		}
		res.Success++
	}
	return res
}

func (t *Transfer) importOne(ctx context.Context, a alarm.AdvancedAlarm, opts ImportOptions,
	seen map[string]bool, srcLoc, dstLoc *time.Location, today alarm.CivilDate) error {

	if err := a.Validate(); err != nil {
		return err
	}
	if opts.AdjustTimeZones && srcLoc != nil && dstLoc != nil {
		a.Time = a.Time.Convert(today, srcLoc, dstLoc)
	}
	key := labelTimeKey(a)
	if !opts.OverwriteExisting && seen[key] {
		return fmt.Errorf("alarm %q at %s already exists", a.Label, a.Time)
	}
	if !opts.PreserveIDs || strings.TrimSpace(a.ID) == "" {
		a.ID = alarm.NewID()
	}

	if opts.OverwriteExisting {
		if _, ok, err := t.store.Get(ctx, a.ID); err != nil {
			return err
		} else if ok {
			if err := t.store.Update(ctx, a.ID, a); err != nil {
				return err
			}
			seen[key] = true
			return nil
		}
	}
	if err := t.store.Create(ctx, a); err != nil {
		return err
	}
	seen[key] = true
	return nil
}

// importLocations resolves the snapshot's source timezone and the
// configured target one. Either failing disables time conversion.
func (t *Transfer) importLocations(snap Snapshot) (src, dst *time.Location) {
	srcTZ := strings.TrimSpace(snap.Metadata.Timezone)
	if srcTZ == "" {
		srcTZ = strings.TrimSpace(snap.Settings.TimeZone)
	}
	dstTZ := settings.DefaultConfig().TimeZone
	if t.settings != nil {
		dstTZ = t.settings.Config().TimeZone
	}
	if srcTZ == "" || dstTZ == "" || srcTZ == dstTZ {
		return nil, nil
	}
	srcLoc, err := time.LoadLocation(srcTZ)
	if err != nil {
		t.log.Warn("unknown snapshot timezone, skipping time conversion", logx.String("tz", srcTZ))
		return nil, nil
	}
	dstLoc, err := time.LoadLocation(dstTZ)
	if err != nil {
		t.log.Warn("unknown target timezone, skipping time conversion", logx.String("tz", dstTZ))
		return nil, nil
	}
	return srcLoc, dstLoc
}

func labelTimeKey(a alarm.AdvancedAlarm) string {
	return a.Label + "|" + a.Time.String()
}
