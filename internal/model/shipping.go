package model

type ShippingAddress struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	AddressLine string `json:"address_line" validate:"required"`
	City        string `json:"city" validate:"required"`
	Region      string `json:"region" validate:"required"`
	PostalCode  string `json:"postal_code" validate:"required"`
	Country     string `json:"country" validate:"required,len=2"`
	Phone       string `json:"phone,omitempty"`
}
