package coupons

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chris/coupon-exchange/pkg/api"
	"github.com/chris/coupon-exchange/pkg/coupons"
	"github.com/chris/coupon-exchange/pkg/middleware"
	"github.com/chris/coupon-exchange/pkg/notify"
	"github.com/chris/coupon-exchange/pkg/secrets"
	"github.com/chris/coupon-exchange/pkg/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T) *CouponsHandler {
	t.Helper()
	box, err := secrets.NewBox(make([]byte, 32))
	require.NoError(t, err)
	return NewCouponsHandler(coupons.NewService(memory.New(), box, &notify.Recorder{}))
}

func request(method, target, userID string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func createCoupon(t *testing.T, h *CouponsHandler, userID string, forSale bool) api.Coupon {
	t.Helper()
	code := "ABC-123"
	in := api.NewCoupon{
		Company: "Acme",
		Value:   10000,
		Cost:    8000,
		Secret:  &api.CouponSecret{Code: code},
		ForSale: &forSale,
	}
	rr := httptest.NewRecorder()
	h.CreateCoupon(rr, request(http.MethodPost, "/coupons", userID, in))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var out api.Coupon
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func TestCreateCoupon(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		h := newHandler(t)

		c := createCoupon(t, h, "owner", false)

		assert.Equal(t, "owner", c.OwnerId)
		assert.Equal(t, int64(10000), c.RemainingValue)
		assert.Equal(t, api.CouponStatusACTIVE, c.Status)
		assert.True(t, c.HasSecret)
		require.NotNil(t, c.Cost)
		assert.Equal(t, int64(8000), *c.Cost)
	})

	t.Run("Validation Error", func(t *testing.T) {
		h := newHandler(t)
		rr := httptest.NewRecorder()

		h.CreateCoupon(rr, request(http.MethodPost, "/coupons", "owner", api.NewCoupon{Company: "Acme", Value: -1}))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Invalid Body", func(t *testing.T) {
		h := newHandler(t)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/coupons", bytes.NewReader([]byte("{")))

		h.CreateCoupon(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCreateExtractedCoupon(t *testing.T) {
	h := newHandler(t)
	code := "XYZ"
	rr := httptest.NewRecorder()

	h.CreateExtractedCoupon(rr, request(http.MethodPost, "/coupons/extracted", "owner", api.ExtractedCoupon{
		Company: "Acme",
		Value:   25.5,
		Cost:    20,
		Code:    &code,
	}))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out api.Coupon
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	assert.Equal(t, int64(2550), out.Value)
}

func TestGetCoupon(t *testing.T) {
	h := newHandler(t)
	c := createCoupon(t, h, "owner", false)

	t.Run("Success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetCoupon(rr, request(http.MethodGet, "/coupons/"+c.Id.String(), "owner", nil), c.Id)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Forbidden", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetCoupon(rr, request(http.MethodGet, "/coupons/"+c.Id.String(), "stranger", nil), c.Id)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("Not Found", func(t *testing.T) {
		rr := httptest.NewRecorder()
		id := uuid.New()
		h.GetCoupon(rr, request(http.MethodGet, "/coupons/"+id.String(), "owner", nil), id)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestListMarket(t *testing.T) {
	h := newHandler(t)
	listed := createCoupon(t, h, "seller", true)
	createCoupon(t, h, "seller", false)

	rr := httptest.NewRecorder()
	h.ListMarket(rr, request(http.MethodGet, "/market", "buyer", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var out []api.Coupon
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, listed.Id, out[0].Id)
	assert.Nil(t, out[0].Cost)
}

func TestListOwnedCoupons(t *testing.T) {
	h := newHandler(t)
	createCoupon(t, h, "owner", false)
	createCoupon(t, h, "other", false)

	rr := httptest.NewRecorder()
	h.ListOwnedCoupons(rr, request(http.MethodGet, "/coupons", "owner", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var out []api.Coupon
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	assert.Len(t, out, 1)
}

func TestSetListing(t *testing.T) {
	h := newHandler(t)
	c := createCoupon(t, h, "owner", false)
	price := int64(7000)

	t.Run("Success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.SetListing(rr, request(http.MethodPut, "/coupons/"+c.Id.String()+"/listing", "owner", api.Listing{ForSale: true, AskingPrice: &price}), c.Id)

		require.Equal(t, http.StatusOK, rr.Code)
		var out api.Coupon
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
		assert.True(t, out.IsForSale)
		assert.Equal(t, price, out.AskingPrice)
	})

	t.Run("Forbidden", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.SetListing(rr, request(http.MethodPut, "/coupons/"+c.Id.String()+"/listing", "stranger", api.Listing{ForSale: false}), c.Id)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestRevealCouponSecret(t *testing.T) {
	h := newHandler(t)
	c := createCoupon(t, h, "owner", false)

	t.Run("Success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.RevealCouponSecret(rr, request(http.MethodGet, "/coupons/"+c.Id.String()+"/secret", "owner", nil), c.Id)

		require.Equal(t, http.StatusOK, rr.Code)
		var out api.CouponSecret
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
		assert.Equal(t, "ABC-123", out.Code)
	})

	t.Run("Forbidden", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.RevealCouponSecret(rr, request(http.MethodGet, "/coupons/"+c.Id.String()+"/secret", "stranger", nil), c.Id)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
