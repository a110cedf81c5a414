package validation

import (
	"testing"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func domesticAddress() model.ShippingAddress {
	return model.ShippingAddress{
		Name:        gofakeit.Name(),
		Email:       gofakeit.Email(),
		AddressLine: gofakeit.Street(),
		City:        gofakeit.City(),
		Region:      "Jawa Barat",
		PostalCode:  gofakeit.Zip(),
		Country:     "ID",
		Phone:       "0812-3456-7890",
	}
}

func TestShipping_Valid(t *testing.T) {
	v := New("ID")

	assert.NoError(t, v.Struct(domesticAddress()))

	foreign := domesticAddress()
	foreign.Country = "US"
	foreign.Region = gofakeit.StateAbr()
	foreign.Phone = ""
	assert.NoError(t, v.Struct(foreign))

	freeText := domesticAddress()
	freeText.Country = "FR"
	freeText.Region = "Provence"
	freeText.Phone = ""
	assert.NoError(t, v.Struct(freeText))
}

func TestShipping_RequiredFields(t *testing.T) {
	v := New("ID")

	errs := Errors(v.Struct(model.ShippingAddress{Country: "FR"}))
	require.NotEmpty(t, errs)
	for _, field := range []string{"name", "email", "address_line", "city", "region", "postal_code"} {
		assert.NotNil(t, errs.Field(field), field)
	}
	assert.Nil(t, errs.Field("phone"))
}

func TestShipping_DomesticPhone(t *testing.T) {
	v := New("ID")

	missing := domesticAddress()
	missing.Phone = ""
	errs := Errors(v.Struct(missing))
	require.NotNil(t, errs.Field("phone"))
	assert.Equal(t, "This field is required", errs.Field("phone").Reason)

	international := domesticAddress()
	international.Phone = "+1 415 555 0100"
	errs = Errors(v.Struct(international))
	require.NotNil(t, errs.Field("phone"))
	assert.Equal(t, "Must be a national phone number", errs.Field("phone").Reason)
}

func TestShipping_ConstrainedRegion(t *testing.T) {
	v := New("ID")

	addr := domesticAddress()
	addr.Region = "Atlantis"
	errs := Errors(v.Struct(addr))
	require.NotNil(t, errs.Field("region"))
	assert.Equal(t, "Not a region of ID", errs.Field("region").Reason)
}

func TestShipping_BadEmailAndCountry(t *testing.T) {
	v := New("ID")

	addr := domesticAddress()
	addr.Email = "not-an-email"
	addr.Country = "IDN"
	errs := Errors(v.Struct(addr))
	assert.NotNil(t, errs.Field("email"))
	assert.NotNil(t, errs.Field("country"))
}

func TestNestedPayloads(t *testing.T) {
	v := New("ID")

	err := v.Struct(dto.CheckoutRequest{Shipping: domesticAddress()})
	errs := Errors(err)
	assert.NotNil(t, errs.Field("payment_method"))

	err = v.Struct(dto.CartSyncRequest{Items: []dto.SyncItem{{ProductID: "mug", Quantity: 0}}})
	assert.NotNil(t, Errors(err).Field("quantity"))
}

func TestErrors_NonValidation(t *testing.T) {
	assert.Nil(t, Errors(assert.AnError))
}
