package main

import (
	"os"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
