// Package validation configures go-playground/validator for storefront payloads and turns
// its errors into model.ValidationErrors.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"storefront-checkout/internal/model"

	"github.com/go-playground/validator/v10"
)

var (
	// national format: trunk prefix 0 then 8 to 12 digits
	nationalPhone = regexp.MustCompile(`^0\d{8,12}$`)
	phoneNoise    = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// Regions holds the constrained region selector per country. Countries not listed take
// free-text regions.
var Regions = map[string][]string{
	"ID": {
		"Aceh", "Bali", "Banten", "Bengkulu", "DI Yogyakarta", "DKI Jakarta", "Gorontalo",
		"Jambi", "Jawa Barat", "Jawa Tengah", "Jawa Timur", "Kalimantan Barat",
		"Kalimantan Selatan", "Kalimantan Tengah", "Kalimantan Timur", "Kalimantan Utara",
		"Kepulauan Bangka Belitung", "Kepulauan Riau", "Lampung", "Maluku", "Maluku Utara",
		"Nusa Tenggara Barat", "Nusa Tenggara Timur", "Papua", "Papua Barat", "Papua Barat Daya",
		"Papua Pegunungan", "Papua Selatan", "Papua Tengah", "Riau", "Sulawesi Barat",
		"Sulawesi Selatan", "Sulawesi Tengah", "Sulawesi Tenggara", "Sulawesi Utara",
		"Sumatera Barat", "Sumatera Selatan", "Sumatera Utara",
	},
	"US": {
		"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "DC", "FL", "GA", "HI", "ID", "IL", "IN",
		"IA", "KS", "KY", "LA", "ME", "MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH",
		"NJ", "NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC", "SD", "TN", "TX", "UT",
		"VT", "VA", "WA", "WV", "WI", "WY",
	},
}

// New returns a validator that names fields by their json tag and knows the shipping
// address rules for the given domestic country.
func New(domesticCountry string) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(shippingRules(strings.ToUpper(domesticCountry)), model.ShippingAddress{})
	return v
}

func shippingRules(domestic string) validator.StructLevelFunc {
	return func(sl validator.StructLevel) {
		addr := sl.Current().Interface().(model.ShippingAddress)
		country := strings.ToUpper(addr.Country)

		if country == domestic {
			phone := phoneNoise.Replace(addr.Phone)
			switch {
			case phone == "":
				sl.ReportError(addr.Phone, "phone", "Phone", "required", "")
			case !nationalPhone.MatchString(phone):
				sl.ReportError(addr.Phone, "phone", "Phone", "national_phone", "")
			}
		}

		if regions, ok := Regions[country]; ok && addr.Region != "" && !slices.Contains(regions, addr.Region) {
			sl.ReportError(addr.Region, "region", "Region", "region", country)
		}
	}
}

// Errors converts a validator error into field errors. Other errors yield nil.
func Errors(err error) model.ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}

	out := make(model.ValidationErrors, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		out = append(out, &model.ValidationError{
			Field:  e.Field(),
			Reason: message(e),
		})
	}
	return out
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "national_phone":
		return "Must be a national phone number"
	case "region":
		return "Not a region of " + e.Param()
	default:
		return "Invalid value"
	}
}
