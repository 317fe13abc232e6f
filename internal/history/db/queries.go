package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const createRefreshCycle = `-- name: CreateRefreshCycle :one
insert into refresh_cycle(kind, time) values (?, ?)
returning id
`

type CreateRefreshCycleParams struct {
	Kind string
	Time int64
}

func (q *Queries) CreateRefreshCycle(ctx context.Context, arg CreateRefreshCycleParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createRefreshCycle, arg.Kind, arg.Time)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createMaintenancePayment = `-- name: CreateMaintenancePayment :exec
insert into maintenance_payment(
    cycle_id, due_date, levied_month, levied_amount,
    payable_amount, year_over_year, household_amount
) values (?, ?, ?, ?, ?, ?, ?)
`

type CreateMaintenancePaymentParams struct {
	CycleID         int64
	DueDate         string
	LeviedMonth     string
	LeviedAmount    string
	PayableAmount   string
	YearOverYear    string
	HouseholdAmount string
}

func (q *Queries) CreateMaintenancePayment(ctx context.Context, arg CreateMaintenancePaymentParams) error {
	_, err := q.db.ExecContext(ctx, createMaintenancePayment,
		arg.CycleID,
		arg.DueDate,
		arg.LeviedMonth,
		arg.LeviedAmount,
		arg.PayableAmount,
		arg.YearOverYear,
		arg.HouseholdAmount,
	)
	return err
}

const createMaintenanceItem = `-- name: CreateMaintenanceItem :exec
insert into maintenance_item(cycle_id, position, category, current, previous, delta)
values (?, ?, ?, ?, ?, ?)
`

type CreateMaintenanceItemParams struct {
	CycleID  int64
	Position int64
	Category string
	Current  string
	Previous string
	Delta    string
}

func (q *Queries) CreateMaintenanceItem(ctx context.Context, arg CreateMaintenanceItemParams) error {
	_, err := q.db.ExecContext(ctx, createMaintenanceItem,
		arg.CycleID,
		arg.Position,
		arg.Category,
		arg.Current,
		arg.Previous,
		arg.Delta,
	)
	return err
}

const createEnergyUsage = `-- name: CreateEnergyUsage :exec
insert into energy_usage(cycle_id, month, total_usage, average_comparison, breakdown)
values (?, ?, ?, ?, ?)
`

type CreateEnergyUsageParams struct {
	CycleID           int64
	Month             string
	TotalUsage        string
	AverageComparison string
	Breakdown         string
}

func (q *Queries) CreateEnergyUsage(ctx context.Context, arg CreateEnergyUsageParams) error {
	_, err := q.db.ExecContext(ctx, createEnergyUsage,
		arg.CycleID,
		arg.Month,
		arg.TotalUsage,
		arg.AverageComparison,
		arg.Breakdown,
	)
	return err
}

const createEnergyType = `-- name: CreateEnergyType :exec
insert into energy_type(
    cycle_id, position, type, total_cost, comparison,
    usage, average_usage, billing
) values (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateEnergyTypeParams struct {
	CycleID      int64
	Position     int64
	Type         string
	TotalCost    string
	Comparison   string
	Usage        string
	AverageUsage string
	Billing      string
}

func (q *Queries) CreateEnergyType(ctx context.Context, arg CreateEnergyTypeParams) error {
	_, err := q.db.ExecContext(ctx, createEnergyType,
		arg.CycleID,
		arg.Position,
		arg.Type,
		arg.TotalCost,
		arg.Comparison,
		arg.Usage,
		arg.AverageUsage,
		arg.Billing,
	)
	return err
}

const getPaymentHistory = `-- name: GetPaymentHistory :many
select refresh_cycle.time, maintenance_payment.levied_month,
    maintenance_payment.levied_amount, maintenance_payment.payable_amount,
    maintenance_payment.due_date
from maintenance_payment
inner join refresh_cycle on refresh_cycle.id = maintenance_payment.cycle_id
order by refresh_cycle.time desc, refresh_cycle.id desc
limit ?
`

type GetPaymentHistoryRow struct {
	Time          int64
	LeviedMonth   string
	LeviedAmount  string
	PayableAmount string
	DueDate       string
}

func (q *Queries) GetPaymentHistory(ctx context.Context, limit int64) ([]GetPaymentHistoryRow, error) {
	rows, err := q.db.QueryContext(ctx, getPaymentHistory, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetPaymentHistoryRow
	for rows.Next() {
		var i GetPaymentHistoryRow
		if err := rows.Scan(
			&i.Time,
			&i.LeviedMonth,
			&i.LeviedAmount,
			&i.PayableAmount,
			&i.DueDate,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getEnergyHistory = `-- name: GetEnergyHistory :many
select refresh_cycle.time, energy_usage.month, energy_usage.total_usage,
    energy_usage.breakdown
from energy_usage
inner join refresh_cycle on refresh_cycle.id = energy_usage.cycle_id
order by refresh_cycle.time desc, refresh_cycle.id desc
limit ?
`

type GetEnergyHistoryRow struct {
	Time       int64
	Month      string
	TotalUsage string
	Breakdown  string
}

func (q *Queries) GetEnergyHistory(ctx context.Context, limit int64) ([]GetEnergyHistoryRow, error) {
	rows, err := q.db.QueryContext(ctx, getEnergyHistory, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetEnergyHistoryRow
	for rows.Next() {
		var i GetEnergyHistoryRow
		if err := rows.Scan(
			&i.Time,
			&i.Month,
			&i.TotalUsage,
			&i.Breakdown,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countMaintenanceItems = `-- name: CountMaintenanceItems :one
select count(*) from maintenance_item where cycle_id = ?
`

func (q *Queries) CountMaintenanceItems(ctx context.Context, cycleID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countMaintenanceItems, cycleID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getEnergyTypes = `-- name: GetEnergyTypes :many
select position, type, total_cost, billing from energy_type
where cycle_id = ?
order by position
`

type GetEnergyTypesRow struct {
	Position  int64
	Type      string
	TotalCost string
	Billing   string
}

func (q *Queries) GetEnergyTypes(ctx context.Context, cycleID int64) ([]GetEnergyTypesRow, error) {
	rows, err := q.db.QueryContext(ctx, getEnergyTypes, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetEnergyTypesRow
	for rows.Next() {
		var i GetEnergyTypesRow
		if err := rows.Scan(
			&i.Position,
			&i.Type,
			&i.TotalCost,
			&i.Billing,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLatestCycle = `-- name: GetLatestCycle :one
select id, time from refresh_cycle where kind = ?
order by time desc, id desc
limit 1
`

type GetLatestCycleRow struct {
	ID   int64
	Time int64
}

func (q *Queries) GetLatestCycle(ctx context.Context, kind string) (GetLatestCycleRow, error) {
	row := q.db.QueryRowContext(ctx, getLatestCycle, kind)
	var i GetLatestCycleRow
	err := row.Scan(&i.ID, &i.Time)
	return i, err
}
