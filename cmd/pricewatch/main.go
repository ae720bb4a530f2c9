package main

import (
	"log"

	"github.com/MrSnakeDoc/pricewatch/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ pricewatch failed: %v", err)
	}
}
