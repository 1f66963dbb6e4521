package main

import (
	"errors"
	"fmt"
	"os"

	"modelmap/cmd"
	"modelmap/config"
	"modelmap/logger"

	"github.com/joho/godotenv"
)

func main() {
	envErr := loadEnvFile()

	cfgPaths := config.GetDefaultConfigPaths()
	if err := logger.InitGlobalLoggers(cfgPaths.LogPathApp, cfgPaths.LogPathUpstream, cfgPaths.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize default global loggers: %v\n", err)
		os.Exit(1)
	}
	defer logger.CloseLogFiles()

	if envErr != nil {
		logger.Warn("Failed to load .env file: %v", envErr)
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic recovered in main: %v\n", r)
			logger.CloseLogFiles()
			os.Exit(1)
		}
	}()

	cmd.Execute()
}

// loadEnvFile loads .env (or the given files) into the environment. A missing file is fine;
// MODELMAP_* variables may come from the real environment.
func loadEnvFile(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
