package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
