package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fjacquet/ebics-mt940/cmd/batch"
	"fjacquet/ebics-mt940/cmd/bpd"
	"fjacquet/ebics-mt940/cmd/ebics"
	"fjacquet/ebics-mt940/cmd/mt940"
	"fjacquet/ebics-mt940/cmd/mt942"
	"fjacquet/ebics-mt940/cmd/root"
	"fjacquet/ebics-mt940/internal/config"
	"fjacquet/ebics-mt940/internal/logging"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func init() {
	// Environment first, without logging: the level is not known yet.
	loadEnvSilently()

	// Every logger created from here on uses this level.
	logging.SetAllLogLevels(configureLogLevelDirectly())

	root.Init()

	root.Cmd.AddCommand(mt940.Cmd)
	root.Cmd.AddCommand(mt942.Cmd)
	root.Cmd.AddCommand(ebics.Cmd)
	root.Cmd.AddCommand(bpd.Cmd)
	root.Cmd.AddCommand(batch.Cmd)
}

// loadEnvSilently loads .env from the current or the parent directory
func loadEnvSilently() {
	envFile := ".env"
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		envFile = filepath.Join("..", ".env")
		if _, err := os.Stat(envFile); os.IsNotExist(err) {
			return
		}
	}
	_ = godotenv.Load(envFile)
}

// configureLogLevelDirectly sets the global logrus level from the
// environment and returns it
func configureLogLevelDirectly() logrus.Level {
	levelStr := os.Getenv(config.EnvPrefix + "_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}

	level, err := logrus.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	return level
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
