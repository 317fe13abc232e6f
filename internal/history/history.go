package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/history/db"
	"apti-backend/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("apti-backend/internal/history")

const (
	report_history_record = "history.record"

	KindMaintenance = "maintenance"
	KindEnergy      = "energy"

	recordTimeout = 10 * time.Second
)

// History persists every refreshed record group so that fees and usage can
// be compared over time.
type History struct {
	db  *sql.DB
	qry *db.Queries
	tel telemetry.API

	mutex sync.Mutex
	// last holds the UpdatedAt of the last recorded group of each kind, a
	// group is only recorded again once its timestamp moved.
	last map[string]time.Time
}

// New creates the schema if needed.
func New(ctx context.Context, database *sql.DB, tel telemetry.API) (*History, error) {
	_, err := database.ExecContext(ctx, db.Schema)
	if err != nil {
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &History{
		db:   database,
		qry:  db.New(database),
		tel:  telemetry.NewScopedAPI("history", tel),
		last: map[string]time.Time{},
	}, nil
}

// fresh reports whether a group stamped at has not been recorded yet.
func (h *History) fresh(kind string, at time.Time) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if at.IsZero() {
		return false
	}
	return !h.last[kind].Equal(at)
}

func (h *History) markRecorded(kind string, at time.Time) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.last[kind] = at
}

// Record writes every group of the snapshot that changed since the last call.
// It returns the amount of groups written.
func (h *History) Record(ctx context.Context, snapshot store.Snapshot) (int, error) {
	ctx, span := tracer.Start(ctx, "history:Record")
	defer span.End()

	written := 0
	if h.fresh(KindMaintenance, snapshot.Maintenance.UpdatedAt) {
		err := h.recordMaintenance(ctx, snapshot.Maintenance)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to record maintenance")
			return written, err
		}
		h.markRecorded(KindMaintenance, snapshot.Maintenance.UpdatedAt)
		written++
	}
	if h.fresh(KindEnergy, snapshot.Energy.UpdatedAt) {
		err := h.recordEnergy(ctx, snapshot.Energy)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to record energy")
			return written, err
		}
		h.markRecorded(KindEnergy, snapshot.Energy.UpdatedAt)
		written++
	}
	return written, nil
}

func (h *History) recordMaintenance(ctx context.Context, group store.MaintenanceGroup) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := h.qry.WithTx(tx)

	cycleId, err := txqry.CreateRefreshCycle(ctx, db.CreateRefreshCycleParams{
		Kind: KindMaintenance,
		Time: group.UpdatedAt.Unix(),
	})
	if err != nil {
		return err
	}

	payment := group.Payment
	err = txqry.CreateMaintenancePayment(ctx, db.CreateMaintenancePaymentParams{
		CycleID:         cycleId,
		DueDate:         payment.DueDate,
		LeviedMonth:     payment.LeviedMonth,
		LeviedAmount:    payment.LeviedAmount,
		PayableAmount:   payment.PayableAmount,
		YearOverYear:    payment.YearOverYear,
		HouseholdAmount: payment.CurrentMonthHousehold,
	})
	if err != nil {
		return err
	}

	for i, item := range group.Items {
		err = txqry.CreateMaintenanceItem(ctx, db.CreateMaintenanceItemParams{
			CycleID:  cycleId,
			Position: int64(i),
			Category: item.Category,
			Current:  item.Current,
			Previous: item.Previous,
			Delta:    item.Delta,
		})
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (h *History) recordEnergy(ctx context.Context, group store.EnergyGroup) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := h.qry.WithTx(tx)

	cycleId, err := txqry.CreateRefreshCycle(ctx, db.CreateRefreshCycleParams{
		Kind: KindEnergy,
		Time: group.UpdatedAt.Unix(),
	})
	if err != nil {
		return err
	}

	breakdown := group.Usage.Breakdown
	if breakdown == nil {
		breakdown = map[string]string{}
	}
	serializedBreakdown, err := json.Marshal(breakdown)
	if err != nil {
		return err
	}
	err = txqry.CreateEnergyUsage(ctx, db.CreateEnergyUsageParams{
		CycleID:           cycleId,
		Month:             group.Usage.Month,
		TotalUsage:        group.Usage.TotalUsage,
		AverageComparison: group.Usage.AverageComparison,
		Breakdown:         string(serializedBreakdown),
	})
	if err != nil {
		return err
	}

	for i, entry := range group.Types {
		billing := make(db.BillingTuples, len(entry.Billing))
		for j, field := range entry.Billing {
			billing[j] = [2]string{field.Label, field.Value}
		}
		serializedBilling, err := json.Marshal(billing)
		if err != nil {
			return err
		}

		err = txqry.CreateEnergyType(ctx, db.CreateEnergyTypeParams{
			CycleID:      cycleId,
			Position:     int64(i),
			Type:         entry.Type,
			TotalCost:    entry.TotalCost,
			Comparison:   entry.Comparison,
			Usage:        entry.Usage,
			AverageUsage: entry.AverageUsage,
			Billing:      string(serializedBilling),
		})
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Observer returns a store observer that records every notified snapshot.
func (h *History) Observer() *store.Observer {
	return store.NewObserver(func(snapshot store.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		written, err := h.Record(ctx, snapshot)
		if err != nil {
			h.tel.ReportBroken(report_history_record, err)
			return
		}
		h.tel.ReportDebug("recorded snapshot", "groups", written)
	})
}

type Payment struct {
	Time          time.Time
	LeviedMonth   string
	LeviedAmount  string
	PayableAmount string
	DueDate       string
}

// Payments returns the latest recorded payment summaries, newest first.
func (h *History) Payments(ctx context.Context, limit int) ([]Payment, error) {
	rows, err := h.qry.GetPaymentHistory(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Payment, len(rows))
	for i, r := range rows {
		out[i] = Payment{
			Time:          time.Unix(r.Time, 0),
			LeviedMonth:   r.LeviedMonth,
			LeviedAmount:  r.LeviedAmount,
			PayableAmount: r.PayableAmount,
			DueDate:       r.DueDate,
		}
	}
	return out, nil
}

type Usage struct {
	Time       time.Time
	Month      string
	TotalUsage string
	Breakdown  map[string]string
}

// Usages returns the latest recorded energy summaries, newest first.
func (h *History) Usages(ctx context.Context, limit int) ([]Usage, error) {
	rows, err := h.qry.GetEnergyHistory(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Usage, 0, len(rows))
	for _, r := range rows {
		var breakdown map[string]string
		err := json.Unmarshal([]byte(r.Breakdown), &breakdown)
		if err != nil {
			h.tel.ReportWarning(report_history_record, fmt.Errorf("unmarshal breakdown: %w", err))
			continue
		}
		out = append(out, Usage{
			Time:       time.Unix(r.Time, 0),
			Month:      r.Month,
			TotalUsage: r.TotalUsage,
			Breakdown:  breakdown,
		})
	}
	return out, nil
}
