// Command tokengen выпускает токен сессии для ручной проверки API.
//
//	SESSION_SECRET=... tokengen -user u-1 -role ADMIN
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/storefront-state/internal/middleware"
)

type options struct {
	SessionSecret string `env:"SESSION_SECRET"`
}

func main() {
	userID := flag.String("user", "", "user id placed in the token subject")
	role := flag.String("role", "", "role claim, ADMIN for administrative routes")
	flag.Parse()

	_ = godotenv.Load()

	var opts options
	if err := env.Parse(&opts); err != nil {
		fmt.Fprintln(os.Stderr, "parse env:", err)
		os.Exit(1)
	}
	if opts.SessionSecret == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "SESSION_SECRET and -user are required")
		os.Exit(2)
	}

	token, err := middleware.NewJWTResolver(opts.SessionSecret).Issue(*userID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
