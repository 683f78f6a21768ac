package domain

import "time"

type Address struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Street    string `json:"street" validate:"required"`
	City      string `json:"city" validate:"required"`
	Zip       string `json:"zip" validate:"required"`
}

// Card is a saved payment method. Only the last four digits are kept.
type Card struct {
	ID     string `json:"id"`
	Holder string `json:"holder,omitempty"`
	Brand  string `json:"brand,omitempty"`
	Last4  string `json:"last4"`
	Expiry string `json:"expiry"`
}

type CardInput struct {
	Holder string `json:"holder"`
	Number string `json:"number" validate:"required,numeric,min=12,max=19"`
	Expiry string `json:"expiry" validate:"required"`
	CVC    string `json:"cvc" validate:"required,numeric,min=3,max=4"`
}

type Review struct {
	ID        string    `json:"id"`
	ProductID int64     `json:"productId" validate:"required"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating" validate:"min=1,max=5"`
	Comment   string    `json:"comment" validate:"max=2000"`
	CreatedAt time.Time `json:"createdAt"`
}
