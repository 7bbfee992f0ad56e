package adapter

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	customerModel "loyalty_wallet/internal/domain/customer/model"
	offerModel "loyalty_wallet/internal/domain/offer/model"
	progressModel "loyalty_wallet/internal/domain/progress/model"
	walletModel "loyalty_wallet/internal/domain/wallet/model"
	"loyalty_wallet/internal/pkg/config"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/cache"
	baseModel "loyalty_wallet/pkg/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRSAKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return key, string(pemBytes)
}

func testGoogleConfig(keyPEM, baseURL string) config.GoogleConfig {
	return config.GoogleConfig{
		IssuerID:            "3388000000012345",
		ServiceAccountEmail: "svc@test.iam.gserviceaccount.com",
		PrivateKey:          keyPEM,
		APIBaseURL:          baseURL,
		TokenURL:            baseURL + "/token",
	}
}

func testOffer() *offerModel.Offer {
	return &offerModel.Offer{
		BaseModel:      baseModel.BaseModel{ID: "offer-1"},
		BusinessID:     "biz-1",
		Title:          "Coffee Card",
		StampsRequired: 5,
		Status:         offerModel.StatusActive,
	}
}

func testCustomer() *customerModel.Customer {
	return &customerModel.Customer{
		BaseModel:  baseModel.BaseModel{ID: "cust-1"},
		BusinessID: "biz-1",
		FullName:   "Ada Lovelace",
	}
}

// tokenHandler 服务账号令牌交换的假端点
func tokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"test-token","expires_in":3600}`)
}

func TestGoogleIDDerivation(t *testing.T) {
	_, keyPEM := testRSAKeyPEM(t)
	a := NewGoogleAdapter(testGoogleConfig(keyPEM, "http://unused"), cache.NewMemoryCache())

	assert.Equal(t, "3388000000012345.loyalty-offer-1", a.ClassID("offer-1"))
	assert.Equal(t, "3388000000012345.cust-1-offer-1", a.ObjectID("cust-1", "offer-1"))

	t.Run("IDs are sanitized", func(t *testing.T) {
		assert.Equal(t, "3388000000012345.cust_1-off_er", a.ObjectID("cust 1", "off/er"))
	})
}

func TestGoogleEnsureClassExists(t *testing.T) {
	_, keyPEM := testRSAKeyPEM(t)

	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler)
	mux.HandleFunc("/loyaltyClass/", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/loyaltyClass", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	a := NewGoogleAdapter(testGoogleConfig(keyPEM, ts.URL), cache.NewMemoryCache())
	require.True(t, a.Enabled())

	err := a.EnsureClassExists(context.Background(), testOffer())
	require.NoError(t, err)
	assert.Contains(t, calls, "GET /loyaltyClass/3388000000012345.loyalty-offer-1")
	assert.Contains(t, calls, "POST /loyaltyClass")

	t.Run("Second call is suppressed by the cache marker", func(t *testing.T) {
		before := len(calls)
		require.NoError(t, a.EnsureClassExists(context.Background(), testOffer()))
		assert.Len(t, calls, before)
	})
}

func TestGoogleEnsureObjectTolerates409(t *testing.T) {
	_, keyPEM := testRSAKeyPEM(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler)
	mux.HandleFunc("/loyaltyObject/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/loyaltyObject", func(w http.ResponseWriter, r *http.Request) {
		// 并发创建：另一个请求先写入
		w.WriteHeader(http.StatusConflict)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	a := NewGoogleAdapter(testGoogleConfig(keyPEM, ts.URL), cache.NewMemoryCache())

	progress := &progressModel.CustomerProgress{CurrentStamps: 2, MaxStamps: 5}
	err := a.EnsureObjectExists(context.Background(), testCustomer(), testOffer(), progress)
	assert.NoError(t, err)
}

func TestGooglePushUpdate(t *testing.T) {
	_, keyPEM := testRSAKeyPEM(t)

	pass := &walletModel.WalletPass{
		BaseModel:    baseModel.BaseModel{ID: "pass-1"},
		CustomerID:   "cust-1",
		OfferID:      "offer-1",
		BusinessID:   "biz-1",
		WalletType:   walletModel.WalletGoogle,
		RemoteID:     "3388000000012345.cust-1-offer-1",
		SerialNumber: "serial-1",
	}
	progress := &progressModel.CustomerProgress{CurrentStamps: 3, MaxStamps: 5}

	t.Run("Missing remote object surfaces 404", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/token", tokenHandler)
		mux.HandleFunc("/loyaltyObject/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		a := NewGoogleAdapter(testGoogleConfig(keyPEM, ts.URL), cache.NewMemoryCache())
		err := a.PushUpdate(context.Background(), pass, progress, nil)

		var adapterErr *errs.WalletAdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, 404, adapterErr.StatusCode)
	})

	t.Run("Rate limit is retryable", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/token", tokenHandler)
		mux.HandleFunc("/loyaltyObject/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		a := NewGoogleAdapter(testGoogleConfig(keyPEM, ts.URL), cache.NewMemoryCache())
		err := a.PushUpdate(context.Background(), pass, progress, nil)

		var adapterErr *errs.WalletAdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, 429, adapterErr.StatusCode)
		assert.True(t, adapterErr.Retryable)
	})

	t.Run("Successful push patches object and adds message", func(t *testing.T) {
		var calls []string
		mux := http.NewServeMux()
		mux.HandleFunc("/token", tokenHandler)
		mux.HandleFunc("/loyaltyObject/", func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, r.Method+" "+r.URL.Path)
			fmt.Fprint(w, `{}`)
		})
		ts := httptest.NewServer(mux)
		defer ts.Close()

		a := NewGoogleAdapter(testGoogleConfig(keyPEM, ts.URL), cache.NewMemoryCache())
		err := a.PushUpdate(context.Background(), pass, progress, nil)

		require.NoError(t, err)
		require.Len(t, calls, 2)
		assert.Equal(t, "PATCH /loyaltyObject/3388000000012345.cust-1-offer-1", calls[0])
		assert.Equal(t, "POST /loyaltyObject/3388000000012345.cust-1-offer-1/addMessage", calls[1])
	})
}

func TestGoogleSaveLink(t *testing.T) {
	key, keyPEM := testRSAKeyPEM(t)
	a := NewGoogleAdapter(testGoogleConfig(keyPEM, "http://unused"), cache.NewMemoryCache())

	link, err := a.SaveLink(testCustomer(), testOffer())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "https://pay.google.com/gp/v/save/"))

	raw := strings.TrimPrefix(link, "https://pay.google.com/gp/v/save/")
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "savetowallet", claims["typ"])
	assert.Equal(t, "google", claims["aud"])

	payload, ok := claims["payload"].(map[string]interface{})
	require.True(t, ok)
	objects, ok := payload["loyaltyObjects"].([]interface{})
	require.True(t, ok)
	require.Len(t, objects, 1)

	obj := objects[0].(map[string]interface{})
	assert.Equal(t, a.ObjectID("cust-1", "offer-1"), obj["id"])
	assert.Equal(t, a.ClassID("offer-1"), obj["classId"])
}

func TestGoogleDisabledChannel(t *testing.T) {
	a := NewGoogleAdapter(config.GoogleConfig{}, cache.NewMemoryCache())
	assert.False(t, a.Enabled())

	err := a.EnsureClassExists(context.Background(), testOffer())
	var adapterErr *errs.WalletAdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.True(t, adapterErr.Retryable)
}
