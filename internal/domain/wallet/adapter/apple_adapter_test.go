package adapter

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	offerService "loyalty_wallet/internal/domain/offer/service"
	progressModel "loyalty_wallet/internal/domain/progress/model"
	walletModel "loyalty_wallet/internal/domain/wallet/model"
	"loyalty_wallet/internal/pkg/config"
	"loyalty_wallet/internal/pkg/errs"
	baseModel "loyalty_wallet/pkg/model"

	offerModel "loyalty_wallet/internal/domain/offer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPassStore is a mock of passStore
type MockPassStore struct {
	mock.Mock
}

func (m *MockPassStore) GetByCustomerOfferType(ctx context.Context, customerID, offerID, walletType string) (*walletModel.WalletPass, error) {
	args := m.Called(ctx, customerID, offerID, walletType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*walletModel.WalletPass), args.Error(1)
}

func (m *MockPassStore) Create(ctx context.Context, pass *walletModel.WalletPass) error {
	args := m.Called(ctx, pass)
	return args.Error(0)
}

func (m *MockPassStore) GetDeviceTokens(ctx context.Context, passID string) ([]string, error) {
	args := m.Called(ctx, passID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPassStore) DeleteRegistrationsByToken(ctx context.Context, pushToken string) error {
	args := m.Called(ctx, pushToken)
	return args.Error(0)
}

func testECKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
}

func testAppleConfig(t *testing.T, apnsHost string) config.AppleConfig {
	return config.AppleConfig{
		TeamID:             "TEAM123456",
		PassTypeIdentifier: "pass.com.example.loyalty",
		APNsKeyID:          "KEY1234567",
		APNsPrivateKey:     testECKeyPEM(t),
		APNsHost:           apnsHost,
		AuthTokenSecret:    "0123456789abcdef0123456789abcdef",
		WebServiceURL:      "https://api.example.com/wallet/apple",
	}
}

func testApplePass(authToken string) *walletModel.WalletPass {
	return &walletModel.WalletPass{
		BaseModel:           baseModel.BaseModel{ID: "pass-1"},
		CustomerID:          "cust-1",
		OfferID:             "offer-1",
		BusinessID:          "biz-1",
		WalletType:          walletModel.WalletApple,
		RemoteID:            "serial-1",
		SerialNumber:        "serial-1",
		AuthenticationToken: authToken,
		Status:              walletModel.PassActive,
	}
}

func TestAppleAuthToken(t *testing.T) {
	a := NewAppleAdapter(testAppleConfig(t, "http://unused"), new(MockPassStore))
	require.True(t, a.Enabled())

	t.Run("Same pair derives the same token", func(t *testing.T) {
		assert.Equal(t, a.AuthToken("cust-1", "offer-1"), a.AuthToken("cust-1", "offer-1"))
	})

	t.Run("Different pairs derive different tokens", func(t *testing.T) {
		assert.NotEqual(t, a.AuthToken("cust-1", "offer-1"), a.AuthToken("cust-1", "offer-2"))
		assert.NotEqual(t, a.AuthToken("cust-1", "offer-1"), a.AuthToken("cust-2", "offer-1"))
	})

	t.Run("Verify matches only the stored token", func(t *testing.T) {
		pass := testApplePass(a.AuthToken("cust-1", "offer-1"))
		assert.True(t, a.VerifyAuthToken(pass, a.AuthToken("cust-1", "offer-1")))
		assert.False(t, a.VerifyAuthToken(pass, "forged"))
		assert.False(t, a.VerifyAuthToken(pass, ""))
	})
}

func TestAppleEnsureObjectExists(t *testing.T) {
	t.Run("Existing pass row is left alone", func(t *testing.T) {
		store := new(MockPassStore)
		a := NewAppleAdapter(testAppleConfig(t, "http://unused"), store)

		store.On("GetByCustomerOfferType", mock.Anything, "cust-1", "offer-1", walletModel.WalletApple).
			Return(testApplePass(a.AuthToken("cust-1", "offer-1")), nil)

		err := a.EnsureObjectExists(context.Background(), testCustomer(), testOffer(), &progressModel.CustomerProgress{})
		assert.NoError(t, err)
		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Missing pass row is created with derived token", func(t *testing.T) {
		store := new(MockPassStore)
		a := NewAppleAdapter(testAppleConfig(t, "http://unused"), store)

		store.On("GetByCustomerOfferType", mock.Anything, "cust-1", "offer-1", walletModel.WalletApple).
			Return(nil, errs.ErrPassNotFound)
		store.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				pass := args.Get(1).(*walletModel.WalletPass)
				assert.Equal(t, "cust-1", pass.CustomerID)
				assert.Equal(t, "biz-1", pass.BusinessID)
				assert.Equal(t, walletModel.WalletApple, pass.WalletType)
				assert.NotEmpty(t, pass.SerialNumber)
				assert.Equal(t, pass.SerialNumber, pass.RemoteID)
				assert.Equal(t, a.AuthToken("cust-1", "offer-1"), pass.AuthenticationToken)
			}).
			Return(nil)

		err := a.EnsureObjectExists(context.Background(), testCustomer(), testOffer(), &progressModel.CustomerProgress{})
		assert.NoError(t, err)
		store.AssertExpectations(t)
	})
}

func TestApplePushUpdate(t *testing.T) {
	progress := &progressModel.CustomerProgress{CurrentStamps: 3, MaxStamps: 5}

	t.Run("No registered devices is a no-op", func(t *testing.T) {
		store := new(MockPassStore)
		a := NewAppleAdapter(testAppleConfig(t, "http://unused"), store)
		pass := testApplePass(a.AuthToken("cust-1", "offer-1"))

		store.On("GetDeviceTokens", mock.Anything, "pass-1").Return([]string{}, nil)

		assert.NoError(t, a.PushUpdate(context.Background(), pass, progress, nil))
	})

	t.Run("Dead device tokens are pruned, healthy ones succeed", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "pass.com.example.loyalty", r.Header.Get("apns-topic"))
			assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")

			switch r.URL.Path {
			case "/3/device/good-token":
				w.WriteHeader(http.StatusOK)
			case "/3/device/dead-token":
				w.WriteHeader(http.StatusGone)
				fmt.Fprint(w, `{"reason":"Unregistered"}`)
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		}))
		defer ts.Close()

		store := new(MockPassStore)
		a := NewAppleAdapter(testAppleConfig(t, ts.URL), store)
		pass := testApplePass(a.AuthToken("cust-1", "offer-1"))

		store.On("GetDeviceTokens", mock.Anything, "pass-1").Return([]string{"good-token", "dead-token"}, nil)
		store.On("DeleteRegistrationsByToken", mock.Anything, "dead-token").Return(nil)

		assert.NoError(t, a.PushUpdate(context.Background(), pass, progress, nil))
		store.AssertExpectations(t)
	})

	t.Run("All pushes failing surfaces an adapter error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		store := new(MockPassStore)
		a := NewAppleAdapter(testAppleConfig(t, ts.URL), store)
		pass := testApplePass(a.AuthToken("cust-1", "offer-1"))

		store.On("GetDeviceTokens", mock.Anything, "pass-1").Return([]string{"token-a"}, nil)

		err := a.PushUpdate(context.Background(), pass, progress, nil)
		var adapterErr *errs.WalletAdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.True(t, adapterErr.Retryable)
	})
}

func TestAppleBuildPassPayload(t *testing.T) {
	a := NewAppleAdapter(testAppleConfig(t, "http://unused"), new(MockPassStore))
	pass := testApplePass(a.AuthToken("cust-1", "offer-1"))
	progress := &progressModel.CustomerProgress{CurrentStamps: 3, MaxStamps: 5, RewardsClaimed: 1}
	tier := &offerService.TierStatus{Current: &offerModel.TierLevel{Name: "Gold"}}

	payload := a.BuildPassPayload(pass, testCustomer(), testOffer(), progress, tier)

	assert.Equal(t, 1, payload["formatVersion"])
	assert.Equal(t, "pass.com.example.loyalty", payload["passTypeIdentifier"])
	assert.Equal(t, "serial-1", payload["serialNumber"])
	assert.Equal(t, pass.AuthenticationToken, payload["authenticationToken"])
	assert.Equal(t, "https://api.example.com/wallet/apple", payload["webServiceURL"])

	barcodes := payload["barcodes"].([]map[string]interface{})
	require.Len(t, barcodes, 1)
	assert.Equal(t, "PKBarcodeFormatPDF417", barcodes[0]["format"])
	assert.Contains(t, barcodes[0]["message"].(string), ":")

	card := payload["storeCard"].(map[string]interface{})
	primary := card["primaryFields"].([]map[string]interface{})
	require.Len(t, primary, 1)
	assert.Equal(t, "★★★☆☆", primary[0]["value"])

	aux := card["auxiliaryFields"].([]map[string]interface{})
	require.Len(t, aux, 1)
	assert.Equal(t, "Gold", aux[0]["value"])
}

func TestAppleDisabledChannel(t *testing.T) {
	a := NewAppleAdapter(config.AppleConfig{}, new(MockPassStore))
	assert.False(t, a.Enabled())

	err := a.PushUpdate(context.Background(), testApplePass(""), &progressModel.CustomerProgress{}, nil)
	var adapterErr *errs.WalletAdapterError
	require.ErrorAs(t, err, &adapterErr)
}
