package fixtures

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"nlquery-agent/internal/common/database"
	"nlquery-agent/internal/docstore"
)

// Summary counts what a seed run inserted, per entity.
type Summary map[string]int

var postgresDDL = []string{
	`DROP TABLE IF EXISTS orders CASCADE`,
	`DROP TABLE IF EXISTS products CASCADE`,
	`DROP TABLE IF EXISTS users CASCADE`,
	`CREATE TABLE users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(100) UNIQUE NOT NULL,
		age INTEGER,
		city VARCHAR(50),
		country VARCHAR(50),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE products (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		price DECIMAL(10, 2) NOT NULL,
		category VARCHAR(50),
		stock INTEGER DEFAULT 0,
		rating DECIMAL(3, 2),
		description TEXT
	)`,
	`CREATE TABLE orders (
		id SERIAL PRIMARY KEY,
		user_id INTEGER REFERENCES users(id),
		order_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		status VARCHAR(20) CHECK (status IN ('Pending', 'Shipped', 'Delivered', 'Cancelled')),
		payment_method VARCHAR(50),
		total_amount DECIMAL(10, 2)
	)`,
}

var sqliteDDL = []string{
	`DROP TABLE IF EXISTS orders`,
	`DROP TABLE IF EXISTS products`,
	`DROP TABLE IF EXISTS users`,
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(100) UNIQUE NOT NULL,
		age INTEGER,
		city VARCHAR(50),
		country VARCHAR(50),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(100) NOT NULL,
		price DECIMAL(10, 2) NOT NULL,
		category VARCHAR(50),
		stock INTEGER DEFAULT 0,
		rating DECIMAL(3, 2),
		description TEXT
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER REFERENCES users(id),
		order_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		status VARCHAR(20) CHECK (status IN ('Pending', 'Shipped', 'Delivered', 'Cancelled')),
		payment_method VARCHAR(50),
		total_amount DECIMAL(10, 2)
	)`,
}

// SeedRelational recreates users, products and orders and fills them inside
// one transaction.
func SeedRelational(ctx context.Context, client *database.RelationalClient, seed int64, now time.Time) (Summary, error) {
	ddl := postgresDDL
	if client.Dialect == database.DialectSQLite {
		ddl = sqliteDDL
	}

	tx, err := client.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	insert := func(table string, columns []string, rows [][]interface{}) error {
		marks := make([]string, len(columns))
		for i := range marks {
			marks[i] = client.Dialect.Placeholder(i + 1)
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(columns, ", "), strings.Join(marks, ", ")))
		if err != nil {
			return fmt.Errorf("prepare %s insert: %w", table, err)
		}
		defer stmt.Close()
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
		}
		return nil
	}

	users := make([][]interface{}, len(Users))
	for i, u := range Users {
		users[i] = []interface{}{u.Username, u.Email, u.Age, u.City, u.Country}
	}
	if err := insert("users", []string{"username", "email", "age", "city", "country"}, users); err != nil {
		return nil, err
	}

	products := make([][]interface{}, len(Products))
	for i, p := range Products {
		products[i] = []interface{}{p.Name, p.Price, p.Category, p.Stock, p.Rating, p.Description}
	}
	if err := insert("products", []string{"name", "price", "category", "stock", "rating", "description"}, products); err != nil {
		return nil, err
	}

	generated := Orders(rand.New(rand.NewSource(seed)), now, RelationalOrderCount)
	orders := make([][]interface{}, len(generated))
	for i, o := range generated {
		orders[i] = []interface{}{o.UserID, o.OrderDate.UTC(), o.Status, o.PaymentMethod, o.TotalAmount}
	}
	if err := insert("orders", []string{"user_id", "order_date", "status", "payment_method", "total_amount"}, orders); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit seed transaction: %w", err)
	}
	return Summary{"users": len(users), "products": len(products), "orders": len(orders)}, nil
}

// DocumentWriter is the write side the seeder needs; the query path never sees it.
type DocumentWriter interface {
	Reset(ctx context.Context, collections ...string) error
	InsertMany(ctx context.Context, collection string, docs []docstore.Document) error
}

// SeedDocuments drops and refills the users and orders collections.
func SeedDocuments(ctx context.Context, w DocumentWriter, seed int64, now time.Time) (Summary, error) {
	set := Documents(rand.New(rand.NewSource(seed)), now, DocumentOrderCount)

	if err := w.Reset(ctx, "users", "orders"); err != nil {
		return nil, fmt.Errorf("reset collections: %w", err)
	}
	if err := w.InsertMany(ctx, "users", set.Users); err != nil {
		return nil, fmt.Errorf("insert users: %w", err)
	}
	if err := w.InsertMany(ctx, "orders", set.Orders); err != nil {
		return nil, fmt.Errorf("insert orders: %w", err)
	}
	return Summary{"users": len(set.Users), "orders": len(set.Orders)}, nil
}

type memoryWriter struct {
	store *docstore.MemoryStore
}

// MemoryWriter seeds an in-process store.
func MemoryWriter(store *docstore.MemoryStore) DocumentWriter {
	return memoryWriter{store: store}
}

func (w memoryWriter) Reset(_ context.Context, collections ...string) error {
	w.store.Drop()
	for _, c := range collections {
		w.store.CreateCollection(c)
	}
	return nil
}

func (w memoryWriter) InsertMany(_ context.Context, collection string, docs []docstore.Document) error {
	w.store.Insert(collection, docs...)
	return nil
}

type mongoWriter struct {
	db *mongo.Database
}

// MongoWriter seeds a live database; ids are stored as ObjectIDs.
func MongoWriter(db *mongo.Database) DocumentWriter {
	return mongoWriter{db: db}
}

func (w mongoWriter) Reset(ctx context.Context, collections ...string) error {
	for _, c := range collections {
		if err := w.db.Collection(c).Drop(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w mongoWriter) InsertMany(ctx context.Context, collection string, docs []docstore.Document) error {
	payload := make([]interface{}, len(docs))
	for i, d := range docs {
		payload[i] = docstore.ToBSON(d)
	}
	_, err := w.db.Collection(collection).InsertMany(ctx, payload)
	return err
}
