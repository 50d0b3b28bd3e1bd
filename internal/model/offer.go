package model

// Offer is one product candidate returned by the affiliate search API.
// Produced fresh each poll; only the ItemID outlives the cycle (in the
// per-tenant sent history).
type Offer struct {
	ItemID       string
	Name         string
	ImageURL     string
	Price        float64
	DiscountRate int // percent, 0 when the API reports none
	Rating       float64
	Sales        int
	Link         string
}

// Sendable reports whether the candidate is worth forwarding at all:
// it must have a name and at least one recorded sale.
func (o Offer) Sendable() bool {
	return o.Name != "" && o.Sales > 0
}
