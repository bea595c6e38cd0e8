package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultThreshold = 0.6
	DefaultTopK      = 3

	DefaultFallbackMessage = "抱歉，您询问的问题目前不在我们的知识库中。建议您：\n1. 请前往政务大厅相关窗口现场咨询\n2. 拨打政务服务热线12345\n3. 在工作时间与人工客服联系"

	DefaultSystemPrompt = `你是一个专业的政务服务助手。请直接回答用户问题，不要显示你的思考过程。要求：
1. 直接给出清晰的答案
2. 使用专业、友善的语气
3. 如果知识库中没有相关信息，请礼貌地告知并建议咨询其他渠道
4. 不要输出任何以<think>开头的内容`
)

// Store backends.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Ollama struct {
		BaseURL    string        `yaml:"base_url"`
		EmbedModel string        `yaml:"embed_model"`
		ChatModel  string        `yaml:"chat_model"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"ollama"`

	Retrieval struct {
		Threshold       float64 `yaml:"threshold"`
		TopK            int     `yaml:"top_k"`
		FallbackMessage string  `yaml:"fallback_message"`
		Dimension       int     `yaml:"dimension"`
	} `yaml:"retrieval"`

	LLM struct {
		Enabled      bool    `yaml:"enabled"`
		Temperature  float64 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		SystemPrompt string  `yaml:"system_prompt"`
	} `yaml:"llm"`

	Store struct {
		Type        string `yaml:"type"`
		DataDir     string `yaml:"data_dir"`
		File        string `yaml:"file"`
		SQLitePath  string `yaml:"sqlite_path"`
		DatabaseURL string `yaml:"database_url"`
		TableName   string `yaml:"table_name"`
		VectorDim   int    `yaml:"vector_dim"`
	} `yaml:"store"`

	Server struct {
		Addr        string        `yaml:"addr"`
		ReadTimeout time.Duration `yaml:"read_timeout"`
	} `yaml:"server"`

	Scraper struct {
		MaxDepth  int           `yaml:"max_depth"`
		RateLimit float64       `yaml:"rate_limit"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"scraper"`
}

// FilePath is the location of the JSON collection for the file store.
func (c *Config) FilePath() string {
	return filepath.Join(c.Store.DataDir, c.Store.File)
}

// SQLiteFile is the location of the sqlite database for the sqlite store.
func (c *Config) SQLiteFile() string {
	if filepath.IsAbs(c.Store.SQLitePath) {
		return c.Store.SQLitePath
	}
	return filepath.Join(c.Store.DataDir, c.Store.SQLitePath)
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/askgov/config.yaml"),
			"/etc/askgov/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

// Default returns a configuration with every default applied and no
// environment overrides.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Ollama.BaseURL == "" {
		config.Ollama.BaseURL = "http://localhost:11434"
	}
	if config.Ollama.EmbedModel == "" {
		config.Ollama.EmbedModel = "quentinz/bge-large-zh-v1.5:latest"
	}
	if config.Ollama.ChatModel == "" {
		config.Ollama.ChatModel = "deepseek-r1:14b"
	}
	if config.Ollama.Timeout == 0 {
		config.Ollama.Timeout = 60 * time.Second
	}

	if config.Retrieval.Threshold == 0 {
		config.Retrieval.Threshold = DefaultThreshold
	}
	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = DefaultTopK
	}
	if config.Retrieval.FallbackMessage == "" {
		config.Retrieval.FallbackMessage = DefaultFallbackMessage
	}

	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.SystemPrompt == "" {
		config.LLM.SystemPrompt = DefaultSystemPrompt
	}

	if config.Store.Type == "" {
		config.Store.Type = StoreFile
	}
	if config.Store.DataDir == "" {
		config.Store.DataDir = "data"
	}
	if config.Store.File == "" {
		config.Store.File = "vectors.json"
	}
	if config.Store.SQLitePath == "" {
		config.Store.SQLitePath = "askgov.db"
	}
	if config.Store.TableName == "" {
		config.Store.TableName = "documents"
	}
	if config.Store.VectorDim == 0 {
		config.Store.VectorDim = 1024 // bge-large-zh-v1.5
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":3001"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Ollama.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.DatabaseURL = dbURL
	}
	if dir := os.Getenv("ASKGOV_DATA_DIR"); dir != "" {
		config.Store.DataDir = dir
	}
	if storeType := os.Getenv("ASKGOV_STORE_TYPE"); storeType != "" {
		config.Store.Type = storeType
	}
}
