// Command admintoken prints a signed admin JWT for the /v1/admin endpoints.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/go-telegram-otp/internal/config"
	jwtinfra "github.com/go-telegram-otp/internal/infrastructure/jwt"
	"github.com/joho/godotenv"
)

func main() {
	subject := flag.String("sub", "ops", "operator id placed in the token")
	flag.Parse()

	_ = godotenv.Load()
	p, err := jwtinfra.NewProvider(config.Load())
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	tok, err := p.Sign(*subject, jwtinfra.RoleAdmin)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(tok)
}
