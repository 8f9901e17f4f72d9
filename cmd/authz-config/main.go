package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/teamhub/authz"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("authz-config - Policy configuration tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  authz-config convert <input> <output>  - Convert between formats")
	fmt.Println("  authz-config validate <file>           - Validate configuration")
	fmt.Println("  authz-config stats <file>              - Show configuration statistics")
	fmt.Println()
	fmt.Println("Supported formats: .authz, .dsl, .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: authz-config convert <input> <output>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := saveConfig(cfg, os.Args[3]); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", os.Args[2], os.Args[3])
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authz-config validate <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Configuration is valid")
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authz-config stats <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	entries := 0
	for _, acl := range cfg.ACLs {
		entries += len(acl.Entries)
	}
	fmt.Printf("Custom roles:  %d\n", len(cfg.Roles))
	fmt.Printf("Assignments:   %d\n", len(cfg.Assignments))
	fmt.Printf("Groups:        %d\n", len(cfg.Groups))
	fmt.Printf("ACL records:   %d (%d entries)\n", len(cfg.ACLs), entries)
}

func loadConfig(path string) (*authz.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	loader := authz.NewConfigLoader()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".authz", ".dsl":
		return loader.LoadDSL(data)
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", filepath.Ext(path))
	}
}

func saveConfig(cfg *authz.Config, path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".authz", ".dsl":
		data, err = cfg.ToDSL()
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported format: %s", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
