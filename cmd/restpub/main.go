package main

import (
	"log"

	"github.com/MrSnakeDoc/restpub/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ restpub failed: %v", err)
	}
}
