package testcases

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/tbxark/insuragent/agent"
	"github.com/tbxark/insuragent/extract"
	"github.com/tbxark/insuragent/store"
	"github.com/tbxark/insuragent/types"
)

type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf Config
	err = json.Unmarshal(file, &conf)
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func InitChatModel(t *testing.T) *openai.ChatModel {
	if os.Getenv("INSURAGENT_RUN_LIVE_TESTS") != "1" {
		t.Skip("set INSURAGENT_RUN_LIVE_TESTS=1 to run live LLM tests")
		return nil
	}

	ctx := context.Background()
	conf, err := loadConfig("../config.json")
	if err != nil {
		t.Skipf("failed to load config: %v", err)
		return nil
	}
	if conf.APIKey == "" {
		t.Skip("config.json api_key is empty")
		return nil
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  conf.APIKey,
		Model:   conf.Model,
		BaseURL: conf.BaseURL,
	})
	if err != nil {
		t.Fatalf("failed to init chat model: %v", err)
		return nil
	}
	return chatModel
}

// NewTestFlow 用真实模型和内存存储搭一条完整链路。
func NewTestFlow(t *testing.T) *agent.Flow {
	chatModel := InitChatModel(t)
	if chatModel == nil {
		return nil
	}

	extractor, err := extract.NewToolBasedExtractor(context.Background(), chatModel)
	if err != nil {
		t.Fatalf("创建 extractor 失败: %v", err)
	}
	systemPrompt, err := extract.BuildSystemPrompt()
	if err != nil {
		t.Fatalf("构造系统提示失败: %v", err)
	}
	return agent.NewFlow(
		store.NewConversationStore(store.NewMemoryCache[types.Conversation]()),
		store.NewFormStore(store.NewMemoryCache[types.FilledForm]()),
		extractor,
		systemPrompt,
	)
}
