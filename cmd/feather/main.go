// Command feather is a thin reference CLI over the dispatcher: it loads a
// feather.json config, wires the providers it describes, and issues a
// single chat call.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"goa.design/clue/log"

	"github.com/featherlabs/feather/config"
	"github.com/featherlabs/feather/dispatcher"
	"github.com/featherlabs/feather/llm"
	"github.com/featherlabs/feather/provider"
	"github.com/featherlabs/feather/provideradapter"
)

// Exit codes per spec: 0 success, 1 usage error, 3 runtime error.
const (
	exitOK      = 0
	exitUsage   = 1
	exitRuntime = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	if len(args) == 0 || args[0] != "chat" {
		fmt.Fprintln(stderr, "usage: feather chat [-p PROVIDER] -m MODEL_OR_ALIAS -q PROMPT [-c CONFIG]")
		return exitUsage
	}

	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		providerF = fs.String("p", "", "provider id (omit to let the selection policy choose)")
		modelF    = fs.String("m", "", "model name or alias")
		promptF   = fs.String("q", "", "prompt text")
		configF   = fs.String("c", "", "path to feather.json (searched upward from cwd when omitted)")
	)
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}
	if *modelF == "" || *promptF == "" {
		fmt.Fprintln(stderr, "usage: feather chat [-p PROVIDER] -m MODEL_OR_ALIAS -q PROMPT [-c CONFIG]")
		return exitUsage
	}

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))

	var (
		file config.File
		err  error
	)
	if *configF != "" {
		file, err = config.Parse(*configF)
	} else {
		file, err = config.Load("")
	}
	if err != nil {
		log.Errorf(ctx, err, "loading config")
		fmt.Fprintf(stderr, "feather: %v\n", err)
		return exitRuntime
	}

	d := dispatcher.New(dispatcher.Options{Policy: file.SelectionPolicy()})
	for _, rp := range file.ResolveProviders() {
		backend := newBackend(rp)
		if backend == nil {
			log.Infof(ctx, "feather: skipping provider %q: no adapter for this id", rp.ID)
			continue
		}
		d.Add(provider.Entry{Key: rp.ID, Backend: backend, Models: rp.Models}, backend)
	}

	resp, err := d.Chat(ctx, dispatcher.Params{
		Provider: *providerF,
		Model:    *modelF,
		Request: llm.ChatRequest{
			Model:     *modelF,
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: *promptF}},
			MaxTokens: 1024,
		},
	})
	if err != nil {
		log.Errorf(ctx, err, "chat call failed")
		fmt.Fprintf(stderr, "feather: %v\n", err)
		return exitRuntime
	}

	fmt.Fprintln(stdout, resp.Content)
	return exitOK
}

// newBackend maps a resolved config provider entry to its provideradapter
// implementation by id. Ids with no known adapter are skipped by the
// caller rather than treated as a runtime error, since feather.json can
// list providers this reference CLI doesn't wire (e.g. bedrock, which
// additionally needs an AWS region/credential chain resolved).
func newBackend(rp config.ResolvedProvider) dispatcher.Backend {
	switch rp.ID {
	case "openai":
		return provideradapter.NewOpenAICompatible(rp.ID, rp.APIKey, rp.BaseURL)
	case "anthropic":
		return provideradapter.NewAnthropicFromAPIKey(rp.ID, rp.APIKey)
	default:
		return nil
	}
}
