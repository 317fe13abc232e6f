package store

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/scrapers/apti"
)

const report_store_notify = "store.notify"

// MaintenanceGroup holds the maintenance fee records of the last successful maintenance cycle.
type MaintenanceGroup struct {
	Items   []apti.MaintenanceItem
	Payment apti.MaintenancePayment
	// UpdatedAt is zero until the group was written once.
	UpdatedAt time.Time
}

// EnergyGroup holds the energy records of the last successful energy cycle.
type EnergyGroup struct {
	Usage     apti.EnergyUsage
	Details   []apti.EnergyDetail
	Types     []apti.EnergyType
	UpdatedAt time.Time
}

// Snapshot is the best known state of every record group, the zero value is an empty snapshot.
type Snapshot struct {
	Maintenance MaintenanceGroup
	Energy      EnergyGroup
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Maintenance.Items = slices.Clone(s.Maintenance.Items)
	out.Energy.Usage.Breakdown = maps.Clone(s.Energy.Usage.Breakdown)
	out.Energy.Details = slices.Clone(s.Energy.Details)
	if s.Energy.Types != nil {
		out.Energy.Types = make([]apti.EnergyType, len(s.Energy.Types))
		for i, entry := range s.Energy.Types {
			entry.Billing = slices.Clone(entry.Billing)
			out.Energy.Types[i] = entry
		}
	}
	return out
}

// PayableAmount returns the amount due this month in won, false if it was not found.
func (s Snapshot) PayableAmount() (int64, bool) {
	amount := strings.ReplaceAll(s.Maintenance.Payment.PayableAmount, ",", "")
	if amount == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// TotalEnergyUsage returns the total energy usage of the summarized month
// along with the month label, false if it was not found.
func (s Snapshot) TotalEnergyUsage() (string, float64, bool) {
	usage := s.Energy.Usage
	if usage.TotalUsage == "" {
		return usage.Month, 0, false
	}
	value, err := strconv.ParseFloat(usage.TotalUsage, 64)
	if err != nil {
		return usage.Month, 0, false
	}
	return usage.Month, value, true
}

// Observer is a handle to a change callback, membership in a Store is by
// handle identity so the same function may be registered under two handles.
type Observer struct {
	callback func(Snapshot)
}

func NewObserver(callback func(Snapshot)) *Observer {
	return &Observer{callback: callback}
}

// Store holds the latest Snapshot and the observers interested in it.
type Store struct {
	tel telemetry.API

	mutex     sync.Mutex
	snapshot  Snapshot
	observers map[*Observer]struct{}
}

func New(tel telemetry.API) *Store {
	return &Store{
		tel:       telemetry.NewScopedAPI("store", tel),
		observers: map[*Observer]struct{}{},
	}
}

// Snapshot returns a deep copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.snapshot.clone()
}

// ReplaceMaintenance replaces the whole maintenance group.
func (s *Store) ReplaceMaintenance(items []apti.MaintenanceItem, payment apti.MaintenancePayment, at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Maintenance = MaintenanceGroup{
		Items:     slices.Clone(items),
		Payment:   payment,
		UpdatedAt: at,
	}
}

// ReplaceMaintenanceItems replaces only the line items, the group timestamp is left untouched.
func (s *Store) ReplaceMaintenanceItems(items []apti.MaintenanceItem) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Maintenance.Items = slices.Clone(items)
}

// ReplaceMaintenancePayment replaces only the payment summary.
func (s *Store) ReplaceMaintenancePayment(payment apti.MaintenancePayment) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Maintenance.Payment = payment
}

// StampMaintenance moves the maintenance timestamp.
func (s *Store) StampMaintenance(at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Maintenance.UpdatedAt = at
}

// ReplaceEnergy replaces the whole energy group.
func (s *Store) ReplaceEnergy(usage apti.EnergyUsage, details []apti.EnergyDetail, types []apti.EnergyType, at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Energy = EnergyGroup{
		Usage:     usage,
		Details:   slices.Clone(details),
		Types:     slices.Clone(types),
		UpdatedAt: at,
	}
}

// ReplaceEnergyUsage replaces the summary and category boxes of the energy group.
func (s *Store) ReplaceEnergyUsage(usage apti.EnergyUsage, details []apti.EnergyDetail) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Energy.Usage = usage
	s.snapshot.Energy.Details = slices.Clone(details)
}

// ReplaceEnergyTypes replaces the energy type panels of the energy group.
func (s *Store) ReplaceEnergyTypes(types []apti.EnergyType) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Energy.Types = slices.Clone(types)
}

// StampEnergy moves the energy timestamp.
func (s *Store) StampEnergy(at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Energy.UpdatedAt = at
}

// AddObserver registers an observer, adding the same handle twice is a no-op.
func (s *Store) AddObserver(observer *Observer) {
	if observer == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.observers[observer] = struct{}{}
}

// RemoveObserver unregisters an observer, removing an unknown handle is a no-op.
func (s *Store) RemoveObserver(observer *Observer) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.observers, observer)
}

// ObserverCount returns the amount of registered observers.
func (s *Store) ObserverCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.observers)
}

// NotifyAll synchronously invokes every registered observer with the current
// snapshot. Observers may add or remove observers while being notified, an
// observer removed during the batch is not invoked afterwards. Handles
// without a callback are skipped and a panicking observer does not stop the
// rest of the batch.
func (s *Store) NotifyAll() {
	s.mutex.Lock()
	pending := make([]*Observer, 0, len(s.observers))
	for observer := range s.observers {
		pending = append(pending, observer)
	}
	s.mutex.Unlock()

	for _, observer := range pending {
		if observer.callback == nil {
			continue
		}
		if !s.registered(observer) {
			continue
		}
		s.invoke(observer)
	}
}

func (s *Store) registered(observer *Observer) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.observers[observer]
	return ok
}

func (s *Store) invoke(observer *Observer) {
	defer func() {
		if r := recover(); r != nil {
			s.tel.ReportBroken(report_store_notify, fmt.Errorf("observer panicked: %v", r))
		}
	}()
	observer.callback(s.Snapshot())
}
