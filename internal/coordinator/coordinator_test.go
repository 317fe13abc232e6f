package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"apti-backend/internal/components/chrono"
	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/scrapers/apti"
	"apti-backend/internal/store"

	"github.com/stretchr/testify/require"
)

var errPortalDown = errors.New("portal down")

type fakePortal struct {
	mutex         sync.Mutex
	authenticated bool
	logins        int
	loginErr      error
	// unresolved makes logins succeed without resolving the session
	unresolved bool

	paymentErr  error
	itemsErr    error
	categoryErr error
	typesErr    error

	payment apti.MaintenancePayment
	items   []apti.MaintenanceItem

	// inflight counts energy fetches that are running at the same time
	inflight    atomic.Int32
	maxInflight atomic.Int32
	// energyBarrier makes both energy fetches wait for each other when set
	energyBarrier *sync.WaitGroup
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		payment: apti.MaintenancePayment{PayableAmount: "240000", LeviedMonth: "2"},
		items: []apti.MaintenanceItem{
			{Category: "일반관리비", Current: "45120", Previous: "44980", Delta: "140"},
		},
	}
}

func (p *fakePortal) set(fn func(p *fakePortal)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	fn(p)
}

func (p *fakePortal) Login(ctx context.Context, creds apti.Credentials) (apti.Session, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.logins++
	if p.loginErr != nil {
		p.authenticated = false
		return apti.Session{}, p.loginErr
	}
	p.authenticated = !p.unresolved
	return apti.Session{Token: "token", SiteCode: "site", Authenticated: p.authenticated}, nil
}

func (p *fakePortal) Authenticated() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.authenticated
}

func (p *fakePortal) loginCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.logins
}

func (p *fakePortal) MaintenancePayment(ctx context.Context) (apti.MaintenancePayment, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.paymentErr != nil {
		return apti.MaintenancePayment{}, p.paymentErr
	}
	return p.payment, nil
}

func (p *fakePortal) MaintenanceItems(ctx context.Context) ([]apti.MaintenanceItem, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.itemsErr != nil {
		return nil, p.itemsErr
	}
	return p.items, nil
}

func (p *fakePortal) enterEnergy() func() {
	current := p.inflight.Add(1)
	for {
		highest := p.maxInflight.Load()
		if current <= highest || p.maxInflight.CompareAndSwap(highest, current) {
			break
		}
	}

	p.mutex.Lock()
	barrier := p.energyBarrier
	p.mutex.Unlock()
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return func() { p.inflight.Add(-1) }
}

func (p *fakePortal) EnergyCategory(ctx context.Context) (apti.EnergyUsage, []apti.EnergyDetail, error) {
	defer p.enterEnergy()()

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.categoryErr != nil {
		return apti.EnergyUsage{}, nil, p.categoryErr
	}
	usage := apti.EnergyUsage{
		Month:      "2024.02",
		TotalUsage: "1234",
		Breakdown:  map[string]string{"전기": "67%"},
	}
	details := []apti.EnergyDetail{{Type: "전기", Usage: "320kWh", Cost: "45670", Comparison: "5% 감소"}}
	return usage, details, nil
}

func (p *fakePortal) EnergyTypes(ctx context.Context) ([]apti.EnergyType, error) {
	defer p.enterEnergy()()

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.typesErr != nil {
		return nil, p.typesErr
	}
	return []apti.EnergyType{{Type: "전기", TotalCost: "45670"}, {Type: "열", TotalCost: "21300"}}, nil
}

var testCredentials = apti.Credentials{Identifier: "resident", Secret: "hunter2"}

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	portal    *fakePortal
	scheduler *chrono.ManualScheduler
	tel       *telemetry.RecorderAPI
	notified  *atomic.Int32
	observer  *store.Observer
}

func newHarness(portal *fakePortal) harness {
	notified := &atomic.Int32{}
	return harness{
		portal:    portal,
		scheduler: &chrono.ManualScheduler{},
		tel:       &telemetry.RecorderAPI{},
		notified:  notified,
		observer:  store.NewObserver(func(store.Snapshot) { notified.Add(1) }),
	}
}

func (h harness) initialize() (*Coordinator, error) {
	return Initialize(context.Background(), testCredentials, Options{
		Tel:       h.tel,
		Portal:    h.portal,
		Scheduler: h.scheduler,
		Clock:     chrono.FixedTime{At: testNow},
		Observers: []*store.Observer{h.observer},
	})
}

const (
	sessionTimer = iota
	maintenanceTimer
	energyTimer
)

func TestInitialize(t *testing.T) {
	h := newHarness(newFakePortal())
	c, err := h.initialize()
	require.NoError(t, err)

	require.True(t, c.Available())
	require.Equal(t, int32(1), h.notified.Load())
	require.Equal(t, 1, h.portal.loginCount())
	require.Equal(t, []time.Duration{
		DefaultSessionInterval,
		DefaultMaintenanceInterval,
		DefaultEnergyInterval,
	}, h.scheduler.Intervals())

	snapshot := c.Snapshot()
	require.Len(t, snapshot.Maintenance.Items, 1)
	require.Equal(t, "240000", snapshot.Maintenance.Payment.PayableAmount)
	require.Equal(t, "2024.02", snapshot.Energy.Usage.Month)
	require.Len(t, snapshot.Energy.Details, 1)
	require.Len(t, snapshot.Energy.Types, 2)
	require.True(t, snapshot.Maintenance.UpdatedAt.Equal(testNow))
	require.True(t, snapshot.Energy.UpdatedAt.Equal(testNow))

	require.NoError(t, c.Shutdown(context.Background()))
	require.True(t, h.scheduler.Stopped())
}

func TestInitializeFailures(t *testing.T) {
	cases := []struct {
		name   string
		stage  string
		target error
		setup  func(p *fakePortal)
	}{
		{"bad login", "login", apti.ErrBadResponse, func(p *fakePortal) { p.loginErr = apti.ErrBadResponse }},
		{"missing token", "login", apti.ErrMissingToken, func(p *fakePortal) { p.loginErr = apti.ErrMissingToken }},
		{"unresolved dwelling", "login", apti.ErrDwellingUnresolved, func(p *fakePortal) { p.unresolved = true }},
		{"payment down", "maintenance", errPortalDown, func(p *fakePortal) { p.paymentErr = errPortalDown }},
		{"energy types down", "energy", errPortalDown, func(p *fakePortal) { p.typesErr = errPortalDown }},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			portal := newFakePortal()
			portal.set(testCase.setup)
			h := newHarness(portal)

			c, err := h.initialize()
			require.Nil(t, c)

			var setupErr *SetupError
			require.ErrorAs(t, err, &setupErr)
			require.Equal(t, testCase.stage, setupErr.Stage)
			require.ErrorIs(t, err, testCase.target)
			require.Empty(t, h.scheduler.Intervals())
		})
	}
}

func TestSessionTimer(t *testing.T) {
	h := newHarness(newFakePortal())
	c, err := h.initialize()
	require.NoError(t, err)

	h.scheduler.Fire(sessionTimer)
	h.scheduler.Fire(sessionTimer)
	require.Equal(t, 3, h.portal.loginCount())
	// renewing the session alone does not notify
	require.Equal(t, int32(1), h.notified.Load())

	h.portal.set(func(p *fakePortal) { p.loginErr = apti.ErrBadResponse })
	h.scheduler.Fire(sessionTimer)
	require.False(t, c.Available())
	require.NotEmpty(t, h.tel.Reports(telemetry.KindBroken))
}

func TestTimerLogsInWhenUnauthenticated(t *testing.T) {
	h := newHarness(newFakePortal())
	_, err := h.initialize()
	require.NoError(t, err)

	h.portal.set(func(p *fakePortal) { p.authenticated = false })
	h.scheduler.Fire(maintenanceTimer)
	require.Equal(t, 2, h.portal.loginCount())
	require.Equal(t, int32(2), h.notified.Load())

	// authenticated again, no extra login
	h.scheduler.Fire(energyTimer)
	require.Equal(t, 2, h.portal.loginCount())
	require.Equal(t, int32(3), h.notified.Load())
}

func TestTimerSkipsCycleWhenLoginFails(t *testing.T) {
	h := newHarness(newFakePortal())
	c, err := h.initialize()
	require.NoError(t, err)

	h.portal.set(func(p *fakePortal) {
		p.authenticated = false
		p.loginErr = apti.ErrMissingToken
		p.items = nil
	})
	h.scheduler.Fire(maintenanceTimer)

	require.Equal(t, int32(1), h.notified.Load())
	require.Len(t, c.Snapshot().Maintenance.Items, 1)
	require.False(t, c.Available())
}

func TestStaleOnFailure(t *testing.T) {
	h := newHarness(newFakePortal())
	c, err := h.initialize()
	require.NoError(t, err)
	before := c.Snapshot()

	h.portal.set(func(p *fakePortal) {
		p.paymentErr = errPortalDown
		p.itemsErr = errPortalDown
		p.categoryErr = errPortalDown
		p.typesErr = errPortalDown
	})
	h.scheduler.Fire(maintenanceTimer)
	h.scheduler.Fire(energyTimer)

	require.Equal(t, before, c.Snapshot())
	require.Equal(t, int32(1), h.notified.Load())
	require.Len(t, h.tel.Reports(telemetry.KindWarning), 2)
}

func TestPartialRefresh(t *testing.T) {
	h := newHarness(newFakePortal())
	c, err := h.initialize()
	require.NoError(t, err)

	later := testNow.Add(time.Hour)
	c.clock = chrono.FixedTime{At: later}

	h.portal.set(func(p *fakePortal) {
		p.payment = apti.MaintenancePayment{PayableAmount: "250000"}
		p.itemsErr = errPortalDown
	})
	h.scheduler.Fire(maintenanceTimer)

	snapshot := c.Snapshot()
	// the payment moved while the items and the group timestamp stayed
	require.Equal(t, "250000", snapshot.Maintenance.Payment.PayableAmount)
	require.Len(t, snapshot.Maintenance.Items, 1)
	require.True(t, snapshot.Maintenance.UpdatedAt.Equal(testNow))
	require.Equal(t, int32(2), h.notified.Load())

	h.portal.set(func(p *fakePortal) { p.itemsErr = nil })
	h.scheduler.Fire(maintenanceTimer)
	require.True(t, c.Snapshot().Maintenance.UpdatedAt.Equal(later))
	require.Equal(t, int32(3), h.notified.Load())
}

func TestEnergyFetchesRunInParallel(t *testing.T) {
	portal := newFakePortal()
	h := newHarness(portal)
	c, err := h.initialize()
	require.NoError(t, err)

	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	portal.set(func(p *fakePortal) { p.energyBarrier = barrier })

	done := make(chan struct{})
	go func() {
		h.scheduler.Fire(energyTimer)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("energy fetches did not run in parallel")
	}

	require.Equal(t, int32(2), portal.maxInflight.Load())
	require.Len(t, c.Snapshot().Energy.Types, 2)
	require.Equal(t, int32(2), h.notified.Load())
}

func TestRefreshNow(t *testing.T) {
	h := newHarness(newFakePortal())
	c, err := h.initialize()
	require.NoError(t, err)

	snapshot, err := c.RefreshNow(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Energy.Types, 2)
	require.Equal(t, 2, h.portal.loginCount())
	require.Equal(t, int32(2), h.notified.Load())

	h.portal.set(func(p *fakePortal) { p.categoryErr = errPortalDown })
	snapshot, err = c.RefreshNow(context.Background())
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	require.ErrorIs(t, err, errPortalDown)
	require.Len(t, snapshot.Energy.Details, 1)
	require.Equal(t, int32(3), h.notified.Load())

	h.portal.set(func(p *fakePortal) { p.loginErr = apti.ErrBadResponse })
	_, err = c.RefreshNow(context.Background())
	require.ErrorAs(t, err, &refreshErr)
	require.ErrorIs(t, err, apti.ErrBadResponse)
	require.False(t, c.Available())
	require.Equal(t, int32(3), h.notified.Load())
}

func TestObserversThroughCoordinator(t *testing.T) {
	h := newHarness(newFakePortal())
	c, err := h.initialize()
	require.NoError(t, err)

	calls := 0
	observer := store.NewObserver(func(store.Snapshot) { calls++ })
	c.AddObserver(observer)
	c.AddObserver(observer)

	h.scheduler.Fire(energyTimer)
	require.Equal(t, 1, calls)

	c.RemoveObserver(observer)
	h.scheduler.Fire(energyTimer)
	require.Equal(t, 1, calls)
}

func TestShutdownStopsTimers(t *testing.T) {
	h := newHarness(newFakePortal())
	c, err := h.initialize()
	require.NoError(t, err)

	require.NoError(t, c.Shutdown(context.Background()))
	h.scheduler.Fire(sessionTimer)
	h.scheduler.Fire(maintenanceTimer)
	h.scheduler.Fire(energyTimer)
	require.Equal(t, 1, h.portal.loginCount())
	require.Equal(t, int32(1), h.notified.Load())
}
