package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/medsketch/medsketch/internal/app"
	"github.com/medsketch/medsketch/internal/config"
	"github.com/medsketch/medsketch/internal/log"
	"github.com/medsketch/medsketch/internal/prompt"
)

// defaultQuestion mirrors the HTTP API default for an omitted question.
const defaultQuestion = "A serene landscape at sunset"

// runPrompt generates a single prompt and prints it to stdout. The path
// marker goes to stderr so stdout stays pipeable.
func runPrompt(logger log.Logger) error {
	promptFlags := flag.NewFlagSet("prompt", flag.ContinueOnError)
	promptFlags.SetOutput(os.Stderr)

	instruction := promptFlags.String("instruction", "", "System instruction for the model (required)")
	question := promptFlags.String("question", defaultQuestion, "User request to generate a prompt for")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := promptFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing prompt flags: %w", err)
	}

	if *instruction == "" {
		return errors.New("-instruction is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Pipeline.Generate(ctx, *instruction, *question)
	if err != nil {
		return fmt.Errorf("generating prompt: %w", err)
	}

	if result.Path == prompt.PathRAG {
		fmt.Fprintln(os.Stderr, "[grounded in retrieved context]")
	} else {
		fmt.Fprintln(os.Stderr, "[direct synthesis]")
	}
	fmt.Println(result.Prompt)
	return nil
}
