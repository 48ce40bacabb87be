// Package cmd provides CLI commands for medsketch.
//
// Commands:
//   - serve: HTTP API server for prompt and image generation
//   - index: chunk and embed a corpus file or directory into the passage store
//   - prompt: one-shot prompt generation on the command line
//
// Signal handling and graceful shutdown are implemented for all commands
// via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/medsketch/medsketch/internal/log"
)

// Execute is the main entry point for the medsketch CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "index":
		return runIndex(logger)
	case "prompt":
		return runPrompt(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("medsketch - Retrieval-grounded medical illustration prompts")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  medsketch serve [addr]       Start HTTP API server (default: 127.0.0.1:8000)")
	fmt.Println("  medsketch index <path>       Index a corpus file or directory (.txt/.md)")
	fmt.Println("  medsketch prompt [flags]     Generate one prompt and print it")
	fmt.Println("  medsketch --version          Show version information")
	fmt.Println("  medsketch --help             Show this help")
	fmt.Println()
	fmt.Println("Prompt Flags:")
	fmt.Println("  -instruction <text>          Required: system instruction for the model")
	fmt.Println("  -question <text>             Optional: user request (has a default)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY               Required: Gemini API key")
	fmt.Println("  MEDSKETCH_ADDR               Optional: serve address override")
	fmt.Println("  DATABASE_URL                 Optional: PostgreSQL connection URL")
	fmt.Println("  DEBUG                        Optional: Enable debug logging")
}
