package models

// RoleSeller is the only role allowed to list products.
const RoleSeller = "seller"

// User is the profile the users service returns. It is never persisted here.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

// Session is the outcome of validating a session token. User is nil when
// Valid is false.
type Session struct {
	Valid bool  `json:"valid"`
	User  *User `json:"user"`
}

// SellerProfile is the public view of a seller exposed next to a product.
type SellerProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Status    string `json:"status"`
}

// PublicProfile strips contact details from a user.
func (u User) PublicProfile() SellerProfile {
	return SellerProfile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Status:    u.Status,
	}
}
