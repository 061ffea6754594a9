package main

import (
	"fmt"
	"os"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/auth"
	"github.com/joho/godotenv"
)

// usage: gentoken [user-id] [role] [name]
func main() {
	godotenv.Load("../../.env")

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "your-super-secret-jwt-key-change-in-production"
	}

	userID := "runner-1"
	role := auth.RoleVolunteer
	name := ""

	if len(os.Args) > 1 {
		userID = os.Args[1]
	}
	if len(os.Args) > 2 {
		role = os.Args[2]
	}
	if len(os.Args) > 3 {
		name = os.Args[3]
	}

	ttl := 24 * time.Hour
	tokenString, err := auth.IssueToken(secret, userID, name, role, ttl)
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== JWT Token Generated ===")
	fmt.Println()
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("=== Token Claims ===")
	fmt.Printf("User ID: %s\n", userID)
	fmt.Printf("Role: %s\n", role)
	fmt.Printf("Expires: %s\n", time.Now().Add(ttl).Format(time.RFC3339))
}
