package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/joho/godotenv"

	"github.com/tbxark/insuragent/agent"
	"github.com/tbxark/insuragent/extract"
	"github.com/tbxark/insuragent/store"
	"github.com/tbxark/insuragent/types"
	"github.com/tbxark/insuragent/validate"
)

func main() {
	conf := flag.String("config", "config.json", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}
	config, err := loadConfig(*conf)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		slog.SetLogLoggerLevel(slog.LevelInfo)
	}
	if err := startApp(context.Background(), config); err != nil {
		log.Fatalf("start app: %v", err)
	}
}

func startApp(ctx context.Context, config *Config) error {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  config.APIKey,
		Model:   config.Model,
		BaseURL: config.BaseURL,
	})
	if err != nil {
		return err
	}
	extractor, err := extract.NewToolBasedExtractor(ctx, cm)
	if err != nil {
		return err
	}
	systemPrompt, err := extract.BuildSystemPrompt()
	if err != nil {
		return err
	}

	conversations, forms, err := buildStores(config)
	if err != nil {
		return err
	}
	flow := agent.NewFlow(conversations, forms, extractor, systemPrompt)

	id, err := flow.StartConversation(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Insurance application assistant (conversation %s).\n", id)
	fmt.Println("Tell me about yourself and the insurance you need:")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("you: ")
		input, rErr := reader.ReadString('\n')
		if rErr != nil {
			fmt.Println("input closed, exiting.")
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		result, sErr := flow.SubmitTurn(ctx, id, input)
		if sErr != nil {
			var fieldErr *validate.FieldError
			switch {
			case errors.Is(sErr, extract.ErrUnavailable):
				fmt.Println("assistant: the service is temporarily unavailable, please send that again.")
				continue
			case errors.As(sErr, &fieldErr):
				fmt.Printf("assistant: one of your answers doesn't look right (%s), let's fix it.\n", fieldErr.Field)
				continue
			default:
				return sErr
			}
		}

		if !result.Finished {
			fmt.Printf("assistant: %s\n", result.NextQuestion)
			continue
		}
		return printFilledForm(result.Form)
	}
}

func buildStores(config *Config) (*store.ConversationStore, *store.FormStore, error) {
	if config.RedisURL == "" {
		return store.NewConversationStore(store.NewMemoryCache[types.Conversation]()),
			store.NewFormStore(store.NewMemoryCache[types.FilledForm]()),
			nil
	}
	client, err := store.OpenRedis(config.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewConversationStore(store.NewRedisCache[types.Conversation](client)),
		store.NewFormStore(store.NewRedisCache[types.FilledForm](client)),
		nil
}

func printFilledForm(form *types.FilledForm) error {
	formJSON, err := json.MarshalIndent(form, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println("assistant: your application is complete, here is what we recorded:")
	fmt.Println(string(formJSON))
	return nil
}
