package domain

// Product carries the listing details embedded into conversation responses.
// Product lifecycle (creation, editing, images) is owned elsewhere; this
// service only reads.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl"`
	SellerID string `json:"sellerId"`
}
