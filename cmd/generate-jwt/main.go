package main

import (
	"flag"
	"fmt"
	"os"

	"roadside/internal/shared/auth"
	"roadside/internal/shared/config"

	"github.com/google/uuid"
)

// Dev tokens only: production sessions are issued elsewhere.
func main() {
	userID := flag.String("user", uuid.NewString(), "User ID")
	email := flag.String("email", "test@example.com", "Email address")
	role := flag.String("role", auth.RoleUser, "Role (user|seller|worker)")
	port := flag.Int("port", 0, "Port for the example curl (default from config)")
	flag.Parse()

	cfg := config.Load()
	jwtService := auth.NewJWTService(cfg.JWT)

	token, err := jwtService.GenerateToken(*userID, *email, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating JWT token: %v\n", err)
		os.Exit(1)
	}

	if *port == 0 {
		*port = cfg.Services.DispatchServicePort
	}

	fmt.Printf("\nJWT token generated\n\n")
	fmt.Printf("User ID:   %s\n", *userID)
	fmt.Printf("Email:     %s\n", *email)
	fmt.Printf("Role:      %s\n", *role)
	fmt.Printf("Expires:   %d min\n", cfg.JWT.ExpiryMinutes)
	fmt.Printf("\nToken:\n%s\n", token)
	fmt.Printf("\nAuthorization: Bearer %s\n", token)
	fmt.Printf("\nExample:\n")
	fmt.Printf("curl -X POST http://localhost:%d/api/v1/requests \\\n", *port)
	fmt.Printf("  -H 'Authorization: Bearer %s' \\\n", token)
	fmt.Printf("  -H 'Content-Type: application/json' \\\n")
	fmt.Printf("  -d '{\n")
	fmt.Printf("    \"service_type\": \"towing\",\n")
	fmt.Printf("    \"description\": \"Engine will not start\",\n")
	fmt.Printf("    \"location\": {\"address\": \"12 Elm St\", \"city\": \"Springfield\", \"vehicle_info\": \"2015 Civic\"}\n")
	fmt.Printf("  }'\n\n")
}
