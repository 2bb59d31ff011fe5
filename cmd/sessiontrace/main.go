package main

import (
	"github.com/joho/godotenv"

	"github.com/offlinefirst/sessiontrace/internal/cmd"
)

func main() {
	// Optional .env overlay; absence is not an error.
	_ = godotenv.Load()
	cmd.Execute()
}
