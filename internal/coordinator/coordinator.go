package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"apti-backend/internal/components/assert"
	"apti-backend/internal/components/chrono"
	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/scrapers/apti"
	"apti-backend/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("apti-backend/internal/coordinator")

const (
	report_coordinator_setup       = "coordinator.setup"
	report_coordinator_session     = "coordinator.session"
	report_coordinator_maintenance = "coordinator.maintenance"
	report_coordinator_energy      = "coordinator.energy"

	DefaultSessionInterval     = 20 * time.Minute
	DefaultMaintenanceInterval = 24 * time.Hour
	DefaultEnergyInterval      = 24 * time.Hour

	// cycleTimeout bounds a whole timer triggered cycle, every request within
	// it is bounded by the client timeout as well.
	cycleTimeout = time.Minute
)

// Portal is the subset of *apti.Client the coordinator drives.
type Portal interface {
	Login(ctx context.Context, creds apti.Credentials) (apti.Session, error)
	Authenticated() bool
	MaintenancePayment(ctx context.Context) (apti.MaintenancePayment, error)
	MaintenanceItems(ctx context.Context) ([]apti.MaintenanceItem, error)
	EnergyCategory(ctx context.Context) (apti.EnergyUsage, []apti.EnergyDetail, error)
	EnergyTypes(ctx context.Context) ([]apti.EnergyType, error)
}

type Options struct {
	Tel telemetry.API
	// Portal defaults to an *apti.Client built from Client.
	Portal Portal
	Client apti.ClientOptions

	SessionInterval     time.Duration
	MaintenanceInterval time.Duration
	EnergyInterval      time.Duration

	// Scheduler defaults to chrono.StandardScheduler.
	Scheduler chrono.SchedulerAPI
	// Clock stamps the record groups, it defaults to chrono.StandardTime.
	Clock chrono.TimeAPI
	// Observers are registered before the initial refresh so they are
	// notified of it.
	Observers []*store.Observer
}

// Coordinator keeps a store.Store up to date with the portal on three
// independent cadences: session renewal, maintenance fees and energy usage.
type Coordinator struct {
	tel       telemetry.API
	portal    Portal
	creds     apti.Credentials
	store     *store.Store
	scheduler chrono.SchedulerAPI
	clock     chrono.TimeAPI

	// cycles of the same kind never run at the same time
	maintenanceLock sync.Mutex
	energyLock      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// Initialize logs in and runs the maintenance and energy cycles once before
// scheduling the timers. Any failure of this first pass is returned as a *SetupError.
func Initialize(ctx context.Context, creds apti.Credentials, opts Options) (*Coordinator, error) {
	assert.NotNil(opts.Tel, "tel")
	tel := telemetry.NewScopedAPI("coordinator", opts.Tel)

	if opts.SessionInterval <= 0 {
		opts.SessionInterval = DefaultSessionInterval
	}
	if opts.MaintenanceInterval <= 0 {
		opts.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if opts.EnergyInterval <= 0 {
		opts.EnergyInterval = DefaultEnergyInterval
	}
	if opts.Clock == nil {
		opts.Clock = chrono.NewStandardTime()
	}
	if opts.Portal == nil {
		if opts.Client.Clock == nil {
			opts.Client.Clock = opts.Clock
		}
		client, err := apti.NewClient(opts.Client, opts.Tel)
		if err != nil {
			return nil, &SetupError{Stage: "login", Err: err}
		}
		opts.Portal = client
	}

	ctx, span := tracer.Start(ctx, "coordinator:Initialize")
	defer span.End()

	c := &Coordinator{
		tel:    tel,
		portal: opts.Portal,
		creds:  creds,
		store:  store.New(opts.Tel),
		clock:  opts.Clock,
	}
	for _, observer := range opts.Observers {
		c.store.AddObserver(observer)
	}

	fail := func(stage string, err error) (*Coordinator, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		tel.ReportBroken(report_coordinator_setup, fmt.Errorf("%s: %w", stage, err))
		return nil, &SetupError{Stage: stage, Err: err}
	}

	err := c.login(ctx)
	if err != nil {
		return fail("login", err)
	}
	updated, err := c.refreshMaintenance(ctx)
	if err != nil {
		return fail("maintenance", err)
	}
	energyUpdated, err := c.refreshEnergy(ctx)
	if err != nil {
		return fail("energy", err)
	}
	if updated || energyUpdated {
		c.store.NotifyAll()
	}

	c.scheduler = opts.Scheduler
	if c.scheduler == nil {
		c.scheduler = chrono.NewStandardScheduler(tel)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	err = errors.Join(
		c.scheduler.Every(opts.SessionInterval, c.sessionJob),
		c.scheduler.Every(opts.MaintenanceInterval, c.maintenanceJob),
		c.scheduler.Every(opts.EnergyInterval, c.energyJob),
	)
	if err != nil {
		c.cancel()
		_ = c.scheduler.Stop(ctx)
		return fail("schedule", err)
	}

	return c, nil
}

// login always replaces the current session.
func (c *Coordinator) login(ctx context.Context) error {
	session, err := c.portal.Login(ctx, c.creds)
	if err != nil {
		return err
	}
	if !session.Authenticated {
		return apti.ErrDwellingUnresolved
	}
	return nil
}

// ensureSession logs in only if the current session is not usable.
func (c *Coordinator) ensureSession(ctx context.Context) error {
	if c.portal.Authenticated() {
		return nil
	}
	c.tel.ReportDebug("session is not authenticated, logging in")
	return c.login(ctx)
}

// refreshMaintenance fetches the payment summary and then the line items,
// the items depend on the dwelling code the payment page may provide. Each
// record that could be fetched replaces its previous value, the group is
// only stamped when both were fetched.
func (c *Coordinator) refreshMaintenance(ctx context.Context) (bool, error) {
	c.maintenanceLock.Lock()
	defer c.maintenanceLock.Unlock()

	ctx, span := tracer.Start(ctx, "coordinator:refreshMaintenance")
	defer span.End()

	updated := false

	payment, paymentErr := c.portal.MaintenancePayment(ctx)
	if paymentErr == nil {
		c.store.ReplaceMaintenancePayment(payment)
		updated = true
	}
	items, itemsErr := c.portal.MaintenanceItems(ctx)
	if itemsErr == nil {
		c.store.ReplaceMaintenanceItems(items)
		updated = true
	}

	err := errors.Join(paymentErr, itemsErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "maintenance refresh failed")
		return updated, err
	}
	c.store.StampMaintenance(c.clock.Now())
	return updated, nil
}

// refreshEnergy fetches the energy category and energy type pages in parallel.
func (c *Coordinator) refreshEnergy(ctx context.Context) (bool, error) {
	c.energyLock.Lock()
	defer c.energyLock.Unlock()

	ctx, span := tracer.Start(ctx, "coordinator:refreshEnergy")
	defer span.End()

	var usage apti.EnergyUsage
	var details []apti.EnergyDetail
	var types []apti.EnergyType
	var categoryErr, typesErr error

	// a plain group so that one failing page does not cancel the other
	group := errgroup.Group{}
	group.Go(func() error {
		usage, details, categoryErr = c.portal.EnergyCategory(ctx)
		return categoryErr
	})
	group.Go(func() error {
		types, typesErr = c.portal.EnergyTypes(ctx)
		return typesErr
	})
	_ = group.Wait()

	updated := false
	if categoryErr == nil {
		c.store.ReplaceEnergyUsage(usage, details)
		updated = true
	}
	if typesErr == nil {
		c.store.ReplaceEnergyTypes(types)
		updated = true
	}

	err := errors.Join(categoryErr, typesErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "energy refresh failed")
		return updated, err
	}
	c.store.StampEnergy(c.clock.Now())
	return updated, nil
}

func (c *Coordinator) sessionJob() {
	ctx, cancel := context.WithTimeout(c.ctx, cycleTimeout)
	defer cancel()

	err := c.login(ctx)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_session, err)
	}
}

func (c *Coordinator) maintenanceJob() {
	ctx, cancel := context.WithTimeout(c.ctx, cycleTimeout)
	defer cancel()

	err := c.ensureSession(ctx)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_maintenance, fmt.Errorf("login: %w", err))
		return
	}
	updated, err := c.refreshMaintenance(ctx)
	if err != nil {
		c.tel.ReportWarning(report_coordinator_maintenance, err)
	}
	if updated {
		c.store.NotifyAll()
	}
}

func (c *Coordinator) energyJob() {
	ctx, cancel := context.WithTimeout(c.ctx, cycleTimeout)
	defer cancel()

	err := c.ensureSession(ctx)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_energy, fmt.Errorf("login: %w", err))
		return
	}
	updated, err := c.refreshEnergy(ctx)
	if err != nil {
		c.tel.ReportWarning(report_coordinator_energy, err)
	}
	if updated {
		c.store.NotifyAll()
	}
}

// RefreshNow logs in again and runs both cycles immediately, observers are
// notified once. Any failure is returned as a *RefreshError along with the
// snapshot, which holds whatever could be refreshed.
func (c *Coordinator) RefreshNow(ctx context.Context) (store.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "coordinator:RefreshNow")
	defer span.End()

	err := c.login(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return c.store.Snapshot(), &RefreshError{Err: fmt.Errorf("login: %w", err)}
	}

	maintenanceUpdated, maintenanceErr := c.refreshMaintenance(ctx)
	energyUpdated, energyErr := c.refreshEnergy(ctx)
	if maintenanceUpdated || energyUpdated {
		c.store.NotifyAll()
	}

	err = errors.Join(maintenanceErr, energyErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return c.store.Snapshot(), &RefreshError{Err: err}
	}
	return c.store.Snapshot(), nil
}

// Shutdown stops every timer together and waits for running cycles until
// ctx is done, cycles still running after that are cancelled.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	defer c.cancel()
	return c.scheduler.Stop(ctx)
}

func (c *Coordinator) AddObserver(observer *store.Observer) {
	c.store.AddObserver(observer)
}

func (c *Coordinator) RemoveObserver(observer *store.Observer) {
	c.store.RemoveObserver(observer)
}

// Snapshot returns a copy of the latest known records.
func (c *Coordinator) Snapshot() store.Snapshot {
	return c.store.Snapshot()
}

// Available reports whether the portal session is currently usable.
func (c *Coordinator) Available() bool {
	return c.portal.Authenticated()
}
