package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"peaklabeler/internal/console"
	"peaklabeler/pkg/config"
	"peaklabeler/pkg/container"
	"peaklabeler/pkg/labeler"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "peaklabeler.yaml", "Manifest listing the containers to label")
	sessionPath := flag.String("session", "", "Session file to resume")
	initConfig := flag.Bool("init-config", false, "Write a default manifest to -config and exit")
	synth := flag.Int("synth", 0, "Write this many synthetic demo containers next to -config and list them in a new manifest")
	synthEvents := flag.Int("synth-events", 8, "Events per synthetic container")
	logLevel := flag.String("log-level", "", "Override the manifest log level (debug, info, warn, error)")
	flag.Parse()

	if *synth > 0 {
		paths, err := writeSynthetic(filepath.Dir(*configPath), *synth, *synthEvents)
		if err != nil {
			log.Fatalf("Failed to write synthetic containers: %v", err)
		}
		if err := config.CreateDefaultConfigFile(*configPath, paths...); err != nil {
			log.Fatalf("Failed to write manifest: %v", err)
		}
		fmt.Printf("Wrote %d synthetic containers and manifest %s\n", len(paths), *configPath)
		return
	}

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write manifest: %v", err)
		}
		fmt.Printf("Default manifest written to %s; add container paths before use\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load manifest: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Invalid logging settings: %v", err)
	}

	engine, err := labeler.New(cfg, labeler.Options{Logger: logger})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer engine.Close()

	if *sessionPath != "" {
		if err := engine.LoadSession(*sessionPath); err != nil {
			log.Printf("Warning: session not restored: %v", err)
		}
	}

	fmt.Printf("%d samples in %d containers. Type help for commands.\n", engine.IndexCount(), len(cfg.Containers))
	if err := console.New(engine, os.Stdout).Run(os.Stdin); err != nil {
		log.Printf("Input error: %v", err)
	}
}

func newLogger(cfg *config.Config) (*labeler.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Format == "json" {
		return labeler.NewJSONLogger(level), nil
	}
	return labeler.NewTextLogger(level), nil
}

func writeSynthetic(dir string, n, events int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("synthetic_%02d.plcx", i)
		spec := container.SyntheticSpec(64, 64, events, uint64(i+1))
		if err := container.Create(filepath.Join(dir, name), spec); err != nil {
			return nil, err
		}
		// Manifest paths are relative to the manifest itself
		paths = append(paths, name)
	}
	return paths, nil
}
