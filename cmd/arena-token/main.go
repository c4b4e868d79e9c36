package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/chess-arena/internal/auth"
)

// Mints a development bearer token for connecting to the arena server.
func main() {
	user := flag.String("user", "", "user id to embed in the token")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if strings.TrimSpace(*user) == "" {
		log.Fatal("-user is required")
	}
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	token, err := auth.NewTokenService(secret).GenerateToken(*user, *ttl)
	if err != nil {
		log.Fatalf("token error: %v", err)
	}
	fmt.Println(token)
}
