package dto

// CheckoutRequestDTO starts a hosted checkout for the given product.
type CheckoutRequestDTO struct {
	ProductID string `json:"product_id" validate:"required"`
}

// CheckoutResponseDTO returns the hosted payment page URL.
type CheckoutResponseDTO struct {
	CheckoutURL string `json:"checkout_url"`
}

// ActivateRequestDTO confirms a completed checkout. At least one of the
// identifiers must be present.
type ActivateRequestDTO struct {
	SubscriptionID string `json:"subscription_id,omitempty" validate:"required_without_all=OrderID CheckoutID"`
	OrderID        string `json:"order_id,omitempty"`
	CheckoutID     string `json:"checkout_id,omitempty"`
}
