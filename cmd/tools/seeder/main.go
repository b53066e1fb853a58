package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedSettings(db)
	seedMenu(db)
	seedPromoCodes(db)
	seedRewards(db)
	seedCards(db)

	log.Println("Seeding completed successfully!")
}

func seedSettings(db *sql.DB) {
	fmt.Println("Seeding Restaurant Settings...")
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM restaurant_settings").Scan(&count); err != nil {
		log.Fatalf("Failed to count settings: %v", err)
	}
	if count > 0 {
		return
	}
	_, err := db.Exec(`
		INSERT INTO restaurant_settings
			(name, description, tagline, address, phone, email,
			 latitude, longitude, delivery_radius_km, minimum_order,
			 free_delivery_threshold, vat_rate, delivery_fee_base, delivery_fee_per_km)
		VALUES
			('Chopsticks & Fire', 'Asian fusion kitchen in the heart of Lekki',
			 'Wok this way', '14 Admiralty Way, Lekki Phase 1, Lagos',
			 '+2348012345678', 'hello@chopsticksfire.ng',
			 6.4478, 3.4723, 15, 1000, 50000, 0.075, 2000, 150);
	`)
	if err != nil {
		log.Fatalf("Failed to seed settings: %v", err)
	}
}

func seedMenu(db *sql.DB) {
	categories := []struct {
		Name      string
		SortOrder int
	}{
		{"Rice & Bowls", 1},
		{"Noodles", 2},
		{"Small Chops", 3},
		{"Grill", 4},
		{"Drinks", 5},
	}

	fmt.Println("Seeding Categories...")
	catIDs := make(map[string]string)
	for _, c := range categories {
		var id string
		err := db.QueryRow("SELECT id FROM categories WHERE name = $1", c.Name).Scan(&id)
		if err == sql.ErrNoRows {
			err = db.QueryRow(`
				INSERT INTO categories (name, sort_order) VALUES ($1, $2) RETURNING id;
			`, c.Name, c.SortOrder).Scan(&id)
		}
		if err != nil {
			log.Printf("Failed to seed category %s: %v", c.Name, err)
			continue
		}
		catIDs[c.Name] = id
	}

	items := []struct {
		Name        string
		Category    string
		Description string
		Price       string
		Featured    bool
		PrepMins    int
	}{
		{"Jollof Rice Supreme", "Rice & Bowls", "Smoky party jollof with grilled chicken", "2500.00", true, 20},
		{"Dragon Bowl", "Rice & Bowls", "Stir-fried rice, beef strips, house dragon sauce", "5000.00", true, 25},
		{"Suya Noodles", "Noodles", "Wok noodles tossed in suya spice with peppered beef", "3500.00", true, 18},
		{"Singapore Noodles", "Noodles", "Curried rice noodles, shrimp, spring onion", "4000.00", false, 18},
		{"Spring Rolls (6)", "Small Chops", "Crispy vegetable spring rolls with sweet chilli dip", "1500.00", false, 10},
		{"Samosa Platter", "Small Chops", "Beef samosas with tamarind dip", "1800.00", false, 10},
		{"Pepper Grilled Croaker", "Grill", "Whole croaker fish, barbecue pepper glaze", "7500.00", true, 35},
		{"Chapman", "Drinks", "Classic chapman with cucumber and grenadine", "1200.00", false, 5},
		{"Zobo Fizz", "Drinks", "Hibiscus cooler with ginger and lime", "1000.00", false, 5},
	}

	fmt.Println("Seeding Menu Items...")
	for _, it := range items {
		catID, ok := catIDs[it.Category]
		if !ok {
			continue
		}
		var id string
		err := db.QueryRow("SELECT id FROM menu_items WHERE name = $1", it.Name).Scan(&id)
		if err == sql.ErrNoRows {
			_, err = db.Exec(`
				INSERT INTO menu_items (category_id, name, description, price, is_featured, preparation_mins)
				VALUES ($1, $2, $3, $4, $5, $6);
			`, catID, it.Name, it.Description, it.Price, it.Featured, it.PrepMins)
		}
		if err != nil {
			log.Printf("Failed to seed menu item %s: %v", it.Name, err)
		}
	}
}

func seedPromoCodes(db *sql.DB) {
	promos := []struct {
		Code         string
		Description  string
		DiscountType string
		Value        string
		MinOrder     string
		UsageLimit   int
	}{
		{"WELCOME10", "10% off your first taste", "percentage", "10.00", "2000.00", 0},
		{"LUNCH500", "500 naira off weekday lunch", "fixed", "500.00", "3000.00", 200},
		{"FREEDEL", "Free delivery weekend", "fixed", "2000.00", "10000.00", 100},
	}

	fmt.Println("Seeding Promo Codes...")
	for _, p := range promos {
		_, err := db.Exec(`
			INSERT INTO promo_codes (code, description, discount_type, discount_value, minimum_order_amount, usage_limit)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO UPDATE SET
				description = EXCLUDED.description,
				discount_value = EXCLUDED.discount_value;
		`, p.Code, p.Description, p.DiscountType, p.Value, p.MinOrder, p.UsageLimit)
		if err != nil {
			log.Printf("Failed to seed promo %s: %v", p.Code, err)
		}
	}
}

func seedRewards(db *sql.DB) {
	rewards := []struct {
		Name        string
		Description string
		Type        string
		Points      int64
		Percentage  sql.NullString
		Amount      sql.NullString
	}{
		{"5% Off Next Order", "Save five percent on anything", "discount", 2500, nullStr("5.00"), sql.NullString{}},
		{"1000 Off", "Flat 1000 naira discount", "discount", 4000, sql.NullString{}, nullStr("1000.00")},
		{"Free Delivery", "We cover the bike this time", "free_delivery", 3000, sql.NullString{}, sql.NullString{}},
		{"500 Cashback", "Points back after you pay", "cashback", 2000, sql.NullString{}, nullStr("500.00")},
	}

	fmt.Println("Seeding Rewards...")
	for _, rw := range rewards {
		var id string
		err := db.QueryRow("SELECT id FROM rewards WHERE name = $1", rw.Name).Scan(&id)
		if err == sql.ErrNoRows {
			_, err = db.Exec(`
				INSERT INTO rewards (name, description, reward_type, points_required, discount_percentage, discount_amount)
				VALUES ($1, $2, $3, $4, $5, $6);
			`, rw.Name, rw.Description, rw.Type, rw.Points, rw.Percentage, rw.Amount)
		}
		if err != nil {
			log.Printf("Failed to seed reward %s: %v", rw.Name, err)
		}
	}
}

// seedCards generates a batch of unassigned physical loyalty cards. Staff hand
// them out in the restaurant and customers link them from the app.
func seedCards(db *sql.DB) {
	fmt.Println("Seeding Loyalty Cards...")
	for i := 1; i <= 50; i++ {
		code := fmt.Sprintf("RESTO-CARD-%04d", i)
		_, err := db.Exec(`
			INSERT INTO loyalty_cards (qr_code) VALUES ($1)
			ON CONFLICT (qr_code) DO NOTHING;
		`, code)
		if err != nil {
			log.Printf("Failed to seed card %s: %v", code, err)
		}
	}
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
