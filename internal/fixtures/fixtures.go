// Package fixtures holds the demo data set used by the seed command and the
// end-to-end tests: ten users, fifteen products and a batch of orders.
package fixtures

import (
	"math/rand"
	"time"

	"nlquery-agent/internal/docstore"
)

type User struct {
	Username string
	Email    string
	Age      int
	City     string
	Country  string
}

type Product struct {
	Name        string
	Price       float64
	Category    string
	Stock       int
	Rating      float64
	Description string
}

type Order struct {
	UserID        int
	OrderDate     time.Time
	Status        string
	PaymentMethod string
	TotalAmount   float64
}

var Users = []User{
	{"alice", "alice@example.com", 28, "Madrid", "Spain"},
	{"bob", "bob@example.com", 35, "Barcelona", "Spain"},
	{"charlie", "charlie@example.com", 22, "Paris", "France"},
	{"david", "david@example.com", 40, "Berlin", "Germany"},
	{"eve", "eve@example.com", 30, "London", "UK"},
	{"frank", "frank@example.com", 55, "New York", "USA"},
	{"grace", "grace@example.com", 29, "Toronto", "Canada"},
	{"heidi", "heidi@example.com", 45, "Madrid", "Spain"},
	{"ivan", "ivan@example.com", 32, "Moscow", "Russia"},
	{"judy", "judy@example.com", 27, "Valencia", "Spain"},
}

var Products = []Product{
	{"Laptop Pro", 1200.00, "Electronics", 50, 4.8, "High performance laptop"},
	{"Smartphone X", 800.00, "Electronics", 100, 4.5, "Latest flagship phone"},
	{"Wireless Headphones", 150.00, "Electronics", 200, 4.2, "Noise cancelling"},
	{"4K Monitor", 300.00, "Electronics", 30, 4.6, "32 inch display"},
	{"Gaming Mouse", 50.00, "Electronics", 150, 4.0, "RGB mouse"},
	{"Office Chair", 250.00, "Furniture", 20, 4.7, "Ergonomic chair"},
	{"Standing Desk", 400.00, "Furniture", 15, 4.8, "Motorized desk"},
	{"Bookshelf", 120.00, "Furniture", 40, 4.1, "Wooden 5-tier shelf"},
	{"Sofa", 600.00, "Furniture", 10, 4.3, "Comfortable 3-seater"},
	{"Cotton T-Shirt", 25.00, "Clothing", 500, 4.2, "100% Cotton"},
	{"Jeans", 60.00, "Clothing", 300, 4.4, "Slim fit"},
	{"Sneakers", 90.00, "Clothing", 120, 4.5, "Running shoes"},
	{"Blender", 45.00, "Home", 80, 4.0, "High speed blender"},
	{"Coffee Maker", 85.00, "Home", 60, 4.6, "Programmable"},
	{"Air Fryer", 110.00, "Home", 45, 4.8, "Digital air fryer"},
}

var (
	OrderStatuses  = []string{"Pending", "Shipped", "Delivered", "Cancelled"}
	PaymentMethods = []string{"Credit Card", "PayPal", "Bank Transfer", "Bitcoin"}
)

const (
	RelationalOrderCount = 50
	DocumentOrderCount   = 15
)

// Orders draws n random orders placed during the year before now. The same
// seed always yields the same orders.
func Orders(rng *rand.Rand, now time.Time, n int) []Order {
	orders := make([]Order, n)
	for i := range orders {
		product := Products[rng.Intn(len(Products))]
		orders[i] = Order{
			UserID:        rng.Intn(len(Users)) + 1,
			TotalAmount:   round2(product.Price * float64(rng.Intn(3)+1)),
			Status:        OrderStatuses[rng.Intn(len(OrderStatuses))],
			PaymentMethod: PaymentMethods[rng.Intn(len(PaymentMethods))],
			OrderDate:     now.AddDate(0, 0, -rng.Intn(366)),
		}
	}
	return orders
}

// DocumentUser is the user shape of the document data set.
type DocumentUser struct {
	Name  string
	Email string
}

var DocumentUsers = []DocumentUser{
	{"Alice Smith", "alice@example.com"},
	{"Bob Jones", "bob@example.com"},
	{"Charlie Brown", "charlie@example.com"},
	{"Diana Prince", "diana@example.com"},
	{"Evan Wright", "evan@example.com"},
}

var documentStatuses = []string{"pending", "completed", "shipped", "cancelled"}

// DocumentSet is the users and orders collections with ids already assigned,
// so orders can reference their user.
type DocumentSet struct {
	Users  []docstore.Document
	Orders []docstore.Document
}

func Documents(rng *rand.Rand, now time.Time, orders int) DocumentSet {
	set := DocumentSet{}
	ids := make([]docstore.ID, len(DocumentUsers))
	for i, u := range DocumentUsers {
		ids[i] = docstore.NewID()
		set.Users = append(set.Users, docstore.Document{
			"_id":        ids[i],
			"name":       u.Name,
			"email":      u.Email,
			"created_at": now,
		})
	}
	for i := 0; i < orders; i++ {
		set.Orders = append(set.Orders, docstore.Document{
			"_id":          docstore.NewID(),
			"user_id":      ids[rng.Intn(len(ids))],
			"total_amount": round2(20 + rng.Float64()*480),
			"status":       documentStatuses[rng.Intn(len(documentStatuses))],
			"created_at":   now,
		})
	}
	return set
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
