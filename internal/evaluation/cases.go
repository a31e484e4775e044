package evaluation

import "nlquery-agent/internal/models"

const (
	CategorySimple      = "Simple count"
	CategoryJoin        = "Join"
	CategoryAggregation = "Aggregation"
	CategoryFiltering   = "Complex filtering"
	CategoryFilter      = "Filtering"
	CategoryFilterSort  = "Filtering and sorting"
)

// DefaultCases follow the demo data set: users, products and orders on the
// relational side, users and orders on the document side.
var DefaultCases = []Case{
	{models.BackendRelational, CategorySimple, "How many users are there in total?"},
	{models.BackendRelational, CategorySimple, "How many orders are there in total?"},
	{models.BackendRelational, CategorySimple, "How many products are in the Electronics category?"},
	{models.BackendRelational, CategorySimple, "How many orders have status Delivered?"},

	{models.BackendRelational, CategoryJoin, "How much money has the user with username alice spent in total?"},
	{models.BackendRelational, CategoryJoin, "List the usernames of users who have placed orders"},
	{models.BackendRelational, CategoryJoin, "Show username and email of users with orders in status Pending"},
	{models.BackendRelational, CategoryJoin, "How many orders has each user placed? Show username and count"},

	{models.BackendRelational, CategoryAggregation, "What is the total amount of all orders?"},
	{models.BackendRelational, CategoryAggregation, "What is the average price of all products?"},
	{models.BackendRelational, CategoryAggregation, "What is the average amount of orders in status Delivered?"},
	{models.BackendRelational, CategoryAggregation, "What is the total spent per payment method?"},

	{models.BackendRelational, CategoryFiltering, "List products with price above 100 and stock below 50"},
	{models.BackendRelational, CategoryFiltering, "Show orders from the last 30 days with an amount above 200"},
	{models.BackendRelational, CategoryFiltering, "What are the 5 most expensive products in the Electronics category?"},

	{models.BackendDocument, CategorySimple, "How many users are there in total?"},
	{models.BackendDocument, CategorySimple, "How many orders are there in total?"},
	{models.BackendDocument, CategorySimple, "How many orders have status completed?"},
	{models.BackendDocument, CategorySimple, "How many orders have status pending?"},

	{models.BackendDocument, CategoryFilter, "Show the orders of Alice Smith"},
	{models.BackendDocument, CategoryFilter, "List users whose email contains 'example.com'"},
	{models.BackendDocument, CategoryFilter, "List the orders in status shipped or cancelled"},
	{models.BackendDocument, CategoryFilter, "List orders with an amount above 100"},
	{models.BackendDocument, CategoryFilter, "Show users whose name starts with 'B'"},

	{models.BackendDocument, CategoryAggregation, "What is the total amount of all orders?"},
	{models.BackendDocument, CategoryAggregation, "What is the average order amount?"},
	{models.BackendDocument, CategoryAggregation, "What is the total amount of orders in status completed?"},
	{models.BackendDocument, CategoryAggregation, "How much has each user spent? Show name and total"},

	{models.BackendDocument, CategoryFilterSort, "Show the 5 orders with the highest amount"},
	{models.BackendDocument, CategoryFilterSort, "List orders sorted by creation date, newest first"},
}

// CasesFor keeps the cases of the given backends, all of them when none is given.
func CasesFor(cases []Case, backends ...models.Backend) []Case {
	if len(backends) == 0 {
		return cases
	}
	var out []Case
	for _, c := range cases {
		for _, b := range backends {
			if c.Backend == b {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
