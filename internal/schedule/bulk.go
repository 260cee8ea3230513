// Package schedule holds the batch surfaces over the alarm store: bulk
// mutations with per-item error isolation, and full-schedule
// export/import snapshots.
package schedule

import (
	"context"
	"fmt"
	"strings"

	"alarmkit/internal/alarm"
	"alarmkit/internal/storage"
	logx "alarmkit/pkg/logx"
)

// BulkOp selects which mutation a bulk call performs.
type BulkOp string

const (
	BulkCreate    BulkOp = "create"
	BulkUpdate    BulkOp = "update"
	BulkDelete    BulkOp = "delete"
	BulkDuplicate BulkOp = "duplicate"
)

// Operation is one batch request. Alarms carries the payload for
// create/update; IDs for delete/duplicate.
type Operation struct {
	Op     BulkOp                `json:"operation"`
	Alarms []alarm.AdvancedAlarm `json:"alarms,omitempty"`
	IDs    []string              `json:"alarmIds,omitempty"`
}

// BulkResult reports a finished batch. Success+Failed equals the item
// count, except for structural failures where the batch never ran and
// both counters stay zero with a single aggregate error.
type BulkResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

func structural(msg string) BulkResult {
	return BulkResult{Errors: []string{msg}}
}

// Coordinator executes batch mutations against the alarm store.
// Items are processed sequentially within one call; independent calls
// may run concurrently since no state lives outside the store.
type Coordinator struct {
	store storage.Store
	log   logx.Logger
}

func NewCoordinator(store storage.Store, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{store: store, log: log}
}

// Execute runs one batch. A failing item is recorded and counted; the
// batch continues with the next item.
func (c *Coordinator) Execute(ctx context.Context, op Operation) BulkResult {
	if c.store == nil {
		return structural("alarm store is not configured")
	}
	switch op.Op {
	case BulkCreate:
		return c.eachAlarm(op.Alarms, func(a alarm.AdvancedAlarm) error {
			return c.createOne(ctx, a)
		})
	case BulkUpdate:
		return c.eachAlarm(op.Alarms, func(a alarm.AdvancedAlarm) error {
			if strings.TrimSpace(a.ID) == "" {
				return fmt.Errorf("update requires an alarm id")
			}
			if err := a.Validate(); err != nil {
				return err
			}
			return c.store.Update(ctx, a.ID, a)
		})
	case BulkDelete:
		return c.eachID(op.IDs, func(id string) error {
			return c.store.Delete(ctx, id)
		})
	case BulkDuplicate:
		return c.eachID(op.IDs, func(id string) error {
			return c.duplicateOne(ctx, id)
		})
	default:
		return structural(fmt.Sprintf("unknown bulk operation %q", op.Op))
	}
}

func (c *Coordinator) createOne(ctx context.Context, a alarm.AdvancedAlarm) error {
	if strings.TrimSpace(a.ID) == "" {
		a.ID = alarm.NewID()
	}
	if err := a.Validate(); err != nil {
		return err
	}
	return c.store.Create(ctx, a)
}

// duplicateOne copies an existing alarm under a fresh id. The copy is
// created disabled so a batch duplicate never doubles active wake-ups.
func (c *Coordinator) duplicateOne(ctx context.Context, id string) error {
	src, ok, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("alarm %q: %w", id, storage.ErrNotFound)
	}
	cp := src.Clone()
	cp.ID = alarm.NewID()
	cp.Label = src.Label + " (copy)"
	cp.Enabled = false
	return c.store.Create(ctx, cp)
}

func (c *Coordinator) eachAlarm(items []alarm.AdvancedAlarm, fn func(alarm.AdvancedAlarm) error) BulkResult {
	var res BulkResult
	for i, a := range items {
		if err := fn(a); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, itemError(i, a.ID, err))
			continue
		}
		res.Success++
	}
	return res
}

func (c *Coordinator) eachID(ids []string, fn func(string) error) BulkResult {
	var res BulkResult
	for i, id := range ids {
		if err := fn(id); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, itemError(i, id, err))
			continue
		}
		res.Success++
	}
	return res
}

func itemError(i int, id string, err error) string {
	if strings.TrimSpace(id) == "" {
		return fmt.Sprintf("item %d: %v", i, err)
	}
	return fmt.Sprintf("item %d (%s): %v", i, id, err)
}
