package service

import (
	"context"
	"sync"
	"testing"
	"time"

	customerModel "loyalty_wallet/internal/domain/customer/model"
	offerModel "loyalty_wallet/internal/domain/offer/model"
	offerService "loyalty_wallet/internal/domain/offer/service"
	progressModel "loyalty_wallet/internal/domain/progress/model"
	"loyalty_wallet/internal/domain/wallet/adapter"
	walletModel "loyalty_wallet/internal/domain/wallet/model"
	"loyalty_wallet/internal/pkg/errs"
	baseModel "loyalty_wallet/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockWalletPassRepository is a mock of WalletPassRepository
type MockWalletPassRepository struct {
	mock.Mock
}

func (m *MockWalletPassRepository) Create(ctx context.Context, pass *walletModel.WalletPass) error {
	args := m.Called(ctx, pass)
	return args.Error(0)
}

func (m *MockWalletPassRepository) GetByCustomerAndOffer(ctx context.Context, customerID, offerID string) ([]walletModel.WalletPass, error) {
	args := m.Called(ctx, customerID, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]walletModel.WalletPass), args.Error(1)
}

func (m *MockWalletPassRepository) GetByCustomerOfferType(ctx context.Context, customerID, offerID, walletType string) (*walletModel.WalletPass, error) {
	args := m.Called(ctx, customerID, offerID, walletType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*walletModel.WalletPass), args.Error(1)
}

func (m *MockWalletPassRepository) GetBySerial(ctx context.Context, serial string) (*walletModel.WalletPass, error) {
	args := m.Called(ctx, serial)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*walletModel.WalletPass), args.Error(1)
}

func (m *MockWalletPassRepository) UpdateLastPush(ctx context.Context, passID string, at time.Time) error {
	args := m.Called(ctx, passID, at)
	return args.Error(0)
}

func (m *MockWalletPassRepository) UpdateRemoteID(ctx context.Context, passID, remoteID string) error {
	args := m.Called(ctx, passID, remoteID)
	return args.Error(0)
}

func (m *MockWalletPassRepository) UpdateStatus(ctx context.Context, passID string, status int) error {
	args := m.Called(ctx, passID, status)
	return args.Error(0)
}

func (m *MockWalletPassRepository) RegisterDevice(ctx context.Context, reg *walletModel.AppleDeviceRegistration) (bool, error) {
	args := m.Called(ctx, reg)
	return args.Bool(0), args.Error(1)
}

func (m *MockWalletPassRepository) UnregisterDevice(ctx context.Context, deviceLibraryID, passID string) error {
	args := m.Called(ctx, deviceLibraryID, passID)
	return args.Error(0)
}

func (m *MockWalletPassRepository) GetDeviceTokens(ctx context.Context, passID string) ([]string, error) {
	args := m.Called(ctx, passID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockWalletPassRepository) GetRegistration(ctx context.Context, deviceLibraryID, passID string) (*walletModel.AppleDeviceRegistration, error) {
	args := m.Called(ctx, deviceLibraryID, passID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*walletModel.AppleDeviceRegistration), args.Error(1)
}

func (m *MockWalletPassRepository) GetSerialsForDevice(ctx context.Context, deviceLibraryID string, updatedSince *time.Time) ([]string, time.Time, error) {
	args := m.Called(ctx, deviceLibraryID, updatedSince)
	if args.Get(0) == nil {
		return nil, args.Get(1).(time.Time), args.Error(2)
	}
	return args.Get(0).([]string), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockWalletPassRepository) DeleteRegistrationsByToken(ctx context.Context, pushToken string) error {
	args := m.Called(ctx, pushToken)
	return args.Error(0)
}

// fakeAdapter 可编程的适配器桩
type fakeAdapter struct {
	platform   string
	walletType string
	enabled    bool

	// pushFunc 非空时接管 PushUpdate 行为
	pushFunc func(ctx context.Context) error
	// pushErrs 按调用次序消费，越界后返回 nil
	pushErrs []error

	mu          sync.Mutex
	pushCalls   int
	ensureCalls int
}

func (f *fakeAdapter) Platform() string   { return f.platform }
func (f *fakeAdapter) WalletType() string { return f.walletType }
func (f *fakeAdapter) Enabled() bool      { return f.enabled }

func (f *fakeAdapter) EnsureClassExists(ctx context.Context, offer *offerModel.Offer) error {
	return nil
}

func (f *fakeAdapter) EnsureObjectExists(ctx context.Context, customer *customerModel.Customer, offer *offerModel.Offer, progress *progressModel.CustomerProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	return nil
}

func (f *fakeAdapter) PushUpdate(ctx context.Context, pass *walletModel.WalletPass, progress *progressModel.CustomerProgress, tier *offerService.TierStatus) error {
	f.mu.Lock()
	i := f.pushCalls
	f.pushCalls++
	f.mu.Unlock()

	if f.pushFunc != nil {
		return f.pushFunc(ctx)
	}
	if i < len(f.pushErrs) {
		return f.pushErrs[i]
	}
	return nil
}

func (f *fakeAdapter) counts() (pushes, ensures int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushCalls, f.ensureCalls
}

func newFakeApple(enabled bool) *fakeAdapter {
	return &fakeAdapter{platform: walletModel.PlatformAppleName, walletType: walletModel.WalletApple, enabled: enabled}
}

func newFakeGoogle(enabled bool) *fakeAdapter {
	return &fakeAdapter{platform: walletModel.PlatformGoogleName, walletType: walletModel.WalletGoogle, enabled: enabled}
}

func syncFixtures() (*customerModel.Customer, *offerModel.Offer, *progressModel.CustomerProgress) {
	customer := &customerModel.Customer{BaseModel: baseModel.BaseModel{ID: "cust-1"}, BusinessID: "biz-1", FullName: "Ada"}
	offer := &offerModel.Offer{BaseModel: baseModel.BaseModel{ID: "offer-1"}, BusinessID: "biz-1", Title: "Coffee", StampsRequired: 5, Status: offerModel.StatusActive}
	progress := &progressModel.CustomerProgress{BaseModel: baseModel.BaseModel{ID: "prog-1"}, CustomerID: "cust-1", OfferID: "offer-1", BusinessID: "biz-1", CurrentStamps: 3, MaxStamps: 5}
	return customer, offer, progress
}

func applePassRow() walletModel.WalletPass {
	return walletModel.WalletPass{
		BaseModel:    baseModel.BaseModel{ID: "pass-apple"},
		CustomerID:   "cust-1",
		OfferID:      "offer-1",
		BusinessID:   "biz-1",
		WalletType:   walletModel.WalletApple,
		SerialNumber: "serial-apple",
		RemoteID:     "serial-apple",
	}
}

func googlePassRow() walletModel.WalletPass {
	return walletModel.WalletPass{
		BaseModel:    baseModel.BaseModel{ID: "pass-google"},
		CustomerID:   "cust-1",
		OfferID:      "offer-1",
		BusinessID:   "biz-1",
		WalletType:   walletModel.WalletGoogle,
		SerialNumber: "serial-google",
		RemoteID:     "issuer.cust-1-offer-1",
	}
}

func TestSyncOnlyTouchesExistingPasses(t *testing.T) {
	apple := newFakeApple(true)
	google := newFakeGoogle(true)
	repo := new(MockWalletPassRepository)

	// 客户只持有 Google 卡
	repo.On("GetByCustomerAndOffer", mock.Anything, "cust-1", "offer-1").
		Return([]walletModel.WalletPass{googlePassRow()}, nil)
	repo.On("UpdateLastPush", mock.Anything, "pass-google", mock.Anything).Return(nil)

	s := NewSyncService([]adapter.WalletAdapter{apple, google}, repo, time.Second)
	customer, offer, progress := syncFixtures()

	updates := s.SyncAfterProgressChange(context.Background(), customer, offer, progress, nil)

	require.Len(t, updates, 1)
	assert.Equal(t, WalletUpdate{Platform: walletModel.PlatformGoogleName, Success: true, Detail: "updated"}, updates[0])

	applePushes, _ := apple.counts()
	assert.Zero(t, applePushes, "channel without a pass must not be attempted")
	repo.AssertCalled(t, "UpdateLastPush", mock.Anything, "pass-google", mock.Anything)
}

func TestSyncReportsDisabledChannel(t *testing.T) {
	apple := newFakeApple(false)
	google := newFakeGoogle(true)
	repo := new(MockWalletPassRepository)

	repo.On("GetByCustomerAndOffer", mock.Anything, "cust-1", "offer-1").
		Return([]walletModel.WalletPass{applePassRow(), googlePassRow()}, nil)
	repo.On("UpdateLastPush", mock.Anything, "pass-google", mock.Anything).Return(nil)

	s := NewSyncService([]adapter.WalletAdapter{apple, google}, repo, time.Second)
	customer, offer, progress := syncFixtures()

	updates := s.SyncAfterProgressChange(context.Background(), customer, offer, progress, nil)

	require.Len(t, updates, 2)
	assert.Equal(t, WalletUpdate{Platform: walletModel.PlatformAppleName, Success: false, Detail: "channel disabled"}, updates[0])
	assert.Equal(t, WalletUpdate{Platform: walletModel.PlatformGoogleName, Success: true, Detail: "updated"}, updates[1])

	applePushes, _ := apple.counts()
	assert.Zero(t, applePushes)
}

func TestSyncRecreatesMissingRemoteObject(t *testing.T) {
	google := newFakeGoogle(true)
	google.pushErrs = []error{&errs.WalletAdapterError{Platform: google.platform, StatusCode: 404}}
	repo := new(MockWalletPassRepository)

	repo.On("GetByCustomerAndOffer", mock.Anything, "cust-1", "offer-1").
		Return([]walletModel.WalletPass{googlePassRow()}, nil)
	repo.On("UpdateLastPush", mock.Anything, "pass-google", mock.Anything).Return(nil)

	s := NewSyncService([]adapter.WalletAdapter{google}, repo, time.Second)
	customer, offer, progress := syncFixtures()

	updates := s.SyncAfterProgressChange(context.Background(), customer, offer, progress, nil)

	require.Len(t, updates, 1)
	assert.True(t, updates[0].Success)
	assert.Equal(t, "remote object recreated", updates[0].Detail)

	pushes, ensures := google.counts()
	assert.Equal(t, 2, pushes, "push is retried exactly once after recreation")
	assert.Equal(t, 1, ensures)
}

func TestSyncPushFailureDoesNotEscalate(t *testing.T) {
	google := newFakeGoogle(true)
	google.pushErrs = []error{
		&errs.WalletAdapterError{Platform: google.platform, StatusCode: 503, Retryable: true},
	}
	repo := new(MockWalletPassRepository)

	repo.On("GetByCustomerAndOffer", mock.Anything, "cust-1", "offer-1").
		Return([]walletModel.WalletPass{googlePassRow()}, nil)

	s := NewSyncService([]adapter.WalletAdapter{google}, repo, time.Second)
	customer, offer, progress := syncFixtures()

	updates := s.SyncAfterProgressChange(context.Background(), customer, offer, progress, nil)

	require.Len(t, updates, 1)
	assert.False(t, updates[0].Success)
	assert.Equal(t, "push failed (status 503)", updates[0].Detail)

	repo.AssertNotCalled(t, "UpdateLastPush", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncAppliesPerAdapterTimeout(t *testing.T) {
	google := newFakeGoogle(true)
	google.pushFunc = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	repo := new(MockWalletPassRepository)

	repo.On("GetByCustomerAndOffer", mock.Anything, "cust-1", "offer-1").
		Return([]walletModel.WalletPass{googlePassRow()}, nil)

	s := NewSyncService([]adapter.WalletAdapter{google}, repo, 30*time.Millisecond)
	customer, offer, progress := syncFixtures()

	start := time.Now()
	updates := s.SyncAfterProgressChange(context.Background(), customer, offer, progress, nil)

	require.Len(t, updates, 1)
	assert.False(t, updates[0].Success)
	assert.Equal(t, "push timed out", updates[0].Detail)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSyncSurvivesClientCancellation(t *testing.T) {
	google := newFakeGoogle(true)
	google.pushFunc = func(ctx context.Context) error {
		// 上游请求已取消，推送上下文必须仍然存活
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	repo := new(MockWalletPassRepository)

	repo.On("GetByCustomerAndOffer", mock.Anything, "cust-1", "offer-1").
		Return([]walletModel.WalletPass{googlePassRow()}, nil)
	repo.On("UpdateLastPush", mock.Anything, "pass-google", mock.Anything).Return(nil)

	s := NewSyncService([]adapter.WalletAdapter{google}, repo, time.Second)
	customer, offer, progress := syncFixtures()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	updates := s.SyncAfterProgressChange(ctx, customer, offer, progress, nil)

	require.Len(t, updates, 1)
	assert.True(t, updates[0].Success)
}

func TestSyncShutdownWaitsForInflight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	google := newFakeGoogle(true)
	google.pushFunc = func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}
	repo := new(MockWalletPassRepository)

	repo.On("GetByCustomerAndOffer", mock.Anything, "cust-1", "offer-1").
		Return([]walletModel.WalletPass{googlePassRow()}, nil)
	repo.On("UpdateLastPush", mock.Anything, "pass-google", mock.Anything).Return(nil)

	s := NewSyncService([]adapter.WalletAdapter{google}, repo, time.Hour)
	customer, offer, progress := syncFixtures()

	syncDone := make(chan struct{})
	go func() {
		s.SyncAfterProgressChange(context.Background(), customer, offer, progress, nil)
		close(syncDone)
	}()

	<-started

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Shutdown(shortCtx), "shutdown must not report clean while a push is in flight")

	close(release)
	<-syncDone
	assert.NoError(t, s.Shutdown(context.Background()))
}
