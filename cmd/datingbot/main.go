// Command datingbot runs the dating profile Telegram bot.
package main

import (
	"log"

	"github.com/joho/godotenv"

	corecmd "github.com/m3rciful/datingbot/core/cmd"
	"github.com/m3rciful/datingbot/internal/app"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, using environment variables")
	}

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatal(err)
	}
}
