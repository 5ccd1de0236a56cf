package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

type addItemBody struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"min=1"`
}

func TestDecodeJSONBody(t *testing.T) {
	var body addItemBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":3,"quantity":2}`))
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, int64(3), body.ProductID)
	assert.Equal(t, 2, body.Quantity)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var body addItemBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":3,"quantity":2,"extra":true}`))
	err := DecodeJSONBody(req, &body)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyEmpty(t *testing.T) {
	var body addItemBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.Equal(t, "request body required", pkgerrors.As(err).Message())
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	var body addItemBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["product_id"])
	assert.Equal(t, "must be at least 1", details["quantity"])
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestParseIDParam(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "42")
	id, err := ParseIDParam(req, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "abc", "-1", "0"} {
		req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", raw)
		_, err := ParseIDParam(req, "id")
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), raw)
	}
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?redirect=true", nil)
	v, err := ParseQueryBool(req, "redirect", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/", nil), "redirect", false)
	require.NoError(t, err)
	assert.False(t, v)

	_, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?redirect=maybe", nil), "redirect", false)
	assert.Error(t, err)
}

func TestDecodeJSONRejectsTrailingObjects(t *testing.T) {
	var body addItemBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":3,"quantity":1} {"product_id":4}`))
	err := DecodeJSON(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{\"product_id\":3,\"quantity\":1}\n"))
	assert.NoError(t, DecodeJSON(req, &body))
}
