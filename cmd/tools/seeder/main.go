package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/loyalty-api/internal/app"
	"github.com/noah-isme/loyalty-api/internal/catalog"
	"github.com/noah-isme/loyalty-api/internal/common"
	"github.com/noah-isme/loyalty-api/internal/loyalty"
	"github.com/noah-isme/loyalty-api/internal/repo"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	users := repo.UsersRepo{Pool: pool}
	products := repo.ProductsRepo{Pool: pool}
	orders := repo.OrdersRepo{Pool: pool}

	memberID := seedUsers(ctx, users)
	seedCatalog(ctx, products)
	seedDemoOrder(ctx, orders, memberID)

	log.Println("Seeding completed successfully!")
}

func seedUsers(ctx context.Context, users repo.UsersRepo) uuid.UUID {
	accounts := []struct {
		Email  string
		Points int64
	}{
		{"admin@loyalty.dev", 0},
		{"budi@example.com", 500},
		{"siti@example.com", 120},
		{"andi@example.com", 0},
		{"dewi@example.com", 2500},
	}

	fmt.Println("Seeding Users...")
	hash, err := app.HashPassword("password123")
	if err != nil {
		log.Fatalf("Failed to hash seed password: %v", err)
	}

	var memberID uuid.UUID
	for _, a := range accounts {
		u, err := users.CreateUser(ctx, a.Email, hash, a.Points)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.Code == common.CodeConflict {
				existing, lookupErr := users.UserByEmail(ctx, a.Email)
				if lookupErr != nil {
					log.Printf("Failed to look up existing user %s: %v", a.Email, lookupErr)
					continue
				}
				u = existing
			} else {
				log.Printf("Failed to seed user %s: %v", a.Email, err)
				continue
			}
		}
		if a.Email == "budi@example.com" {
			memberID = u.ID
		}
	}
	return memberID
}

func seedCatalog(ctx context.Context, products repo.ProductsRepo) {
	items := []catalog.Product{
		{Title: "MacBook Pro 14 M3", SKU: "MACBOOKPRO14M3", Price: 2500000, DiscountBps: 0, Active: true},
		{Title: "iPhone 15 Pro", SKU: "IPHONE15PRO", Price: 2000000, DiscountBps: 500, Active: true},
		{Title: "Sony WH-1000XM5", SKU: "SONYWH1000XM5", Price: 500000, DiscountBps: 1000, Active: true},
		{Title: "Nike Air Force 1", SKU: "NIKEAIRFORCE1", Price: 150000, DiscountBps: 1500, Active: true},
		{Title: "Adidas Ultraboost", SKU: "ADIDASULTRABOOST", Price: 200000, DiscountBps: 0, Active: true},
		{Title: "Dyson V15 Detect", SKU: "DYSONV15", Price: 1200000, DiscountBps: 250, Active: true},
		{Title: "LEGO Millennium Falcon", SKU: "LEGOFALCON", Price: 1300000, DiscountBps: 0, Active: true},
		{Title: "Kaos Hitam Polos", SKU: "KAOSHITAM", Price: 10000, DiscountBps: 0, Active: true},
		{Title: "Discontinued Sampler", SKU: "SAMPLER-OLD", Price: 5000, DiscountBps: 0, Active: false},
	}

	fmt.Println("Seeding Products...")
	for _, p := range items {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if err := products.UpsertProduct(ctx, p); err != nil {
			log.Printf("Failed to seed product %s: %v", p.SKU, err)
		}
	}
}

// seedDemoOrder leaves one paid, unsettled order behind so the worker and the
// finalize endpoint have something realistic to chew on.
func seedDemoOrder(ctx context.Context, orders repo.OrdersRepo, memberID uuid.UUID) {
	if memberID == uuid.Nil {
		log.Println("Skipping demo order: member user not seeded")
		return
	}

	fmt.Println("Seeding Demo Order...")
	orderID, err := orders.CreateOrder(ctx, memberID, 180000, loyalty.StatusPaid)
	if err != nil {
		log.Printf("Failed to seed demo order: %v", err)
		return
	}
	if err := orders.SetRequestedPoints(ctx, orderID, 100); err != nil {
		log.Printf("Failed to set requested points on demo order: %v", err)
	}
	log.Printf("Demo order %s created for user %s", orderID, memberID)
}
