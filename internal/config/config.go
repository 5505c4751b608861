package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构
type Config struct {
	System    SystemConfig    `mapstructure:"system"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Capital   CapitalConfig   `mapstructure:"capital"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`
	DataDir  string `mapstructure:"data_dir"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// CapitalConfig 资金监控配置
type CapitalConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

// ExchangesConfig 交易所配置
type ExchangesConfig struct {
	Binance BinanceConfig `mapstructure:"binance"`
}

// BinanceConfig Binance配置
type BinanceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`    // 从配置文件或环境变量中读取
	APISecret string `mapstructure:"api_secret"` // 从配置文件或环境变量中读取
}

// RiskConfig 风控配置
type RiskConfig struct {
	AccountID       string                `mapstructure:"account_id"`
	Drawdown        DrawdownConfig        `mapstructure:"drawdown"`
	ConsecutiveLoss ConsecutiveLossConfig `mapstructure:"consecutive_loss"`
	DailyLoss       DailyLossConfig       `mapstructure:"daily_loss"`
	Concentration   ConcentrationConfig   `mapstructure:"concentration"`
	Sizing          SizingConfig          `mapstructure:"sizing"`
}

// DrawdownConfig 回撤熔断配置
type DrawdownConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	ThresholdPercent float64        `mapstructure:"threshold_percent"`
	ReductionTiers   []DrawdownTier `mapstructure:"reduction_tiers"`
}

// DrawdownTier 回撤降仓档位，按阈值升序配置
type DrawdownTier struct {
	ThresholdPct     float64 `mapstructure:"threshold_pct"`
	SizeReductionPct float64 `mapstructure:"size_reduction_pct"`
}

// 连败熔断触顶动作
const (
	CriticalActionPause         = "pause"
	CriticalActionFurtherReduce = "further_reduce"
)

// ConsecutiveLossConfig 连败熔断配置
type ConsecutiveLossConfig struct {
	ReductionThreshold     int     `mapstructure:"reduction_threshold"`
	ReductionFactor        float64 `mapstructure:"reduction_factor"`
	CriticalThreshold      int     `mapstructure:"critical_threshold"`
	CriticalAction         string  `mapstructure:"critical_action"`
	FurtherReductionFactor float64 `mapstructure:"further_reduction_factor"`
}

// DailyLossConfig 当日亏损限制配置
type DailyLossConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	DailyLimitPct       float64 `mapstructure:"daily_limit_pct"`
	WarningThresholdPct float64 `mapstructure:"warning_threshold_pct"`
}

// ConcentrationConfig 持仓集中度配置
type ConcentrationConfig struct {
	BlockDuplicate         bool    `mapstructure:"block_duplicate"`
	MaxTokenPct            float64 `mapstructure:"max_token_pct"`
	MaxClusterPct          float64 `mapstructure:"max_cluster_pct"`
	MaxPositionsPerCluster int     `mapstructure:"max_positions_per_cluster"`
}

// SizingConfig 仓位计算配置
type SizingConfig struct {
	BaseSizeSOL              float64 `mapstructure:"base_size_sol"`
	HighConvictionThreshold  float64 `mapstructure:"high_conviction_threshold"`
	HighConvictionMultiplier float64 `mapstructure:"high_conviction_multiplier"`
	MaxOpenPositions         int     `mapstructure:"max_open_positions"`
}

// LoadConfig 从文件加载配置
func LoadConfig(filePath string) (*Config, error) {
	// 使用Viper读取配置
	v := viper.New()
	v.SetConfigFile(filePath)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 绑定环境变量（可选，如果需要从环境变量覆盖配置）
	v.AutomaticEnv()
	v.SetEnvPrefix("RISKGATE") // 环境变量前缀，如RISKGATE_REDIS_PASSWORD

	// 特定环境变量映射，如果存在这些环境变量则优先使用
	if binanceApiKey := os.Getenv("BINANCE_API_KEY"); binanceApiKey != "" {
		v.Set("exchanges.binance.api_key", binanceApiKey)
	}
	if binanceApiSecret := os.Getenv("BINANCE_API_SECRET"); binanceApiSecret != "" {
		v.Set("exchanges.binance.api_secret", binanceApiSecret)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		v.Set("redis.password", redisPassword)
	}

	// 解析配置到结构体
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 验证配置有效性
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// LoadConfigFromYAML 保留的yaml加载函数以备不时之需
func LoadConfigFromYAML(filePath string) (*Config, error) {
	yamlFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 验证配置有效性
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// validateConfig 验证配置有效性
func validateConfig(config *Config) error {
	if config.Risk.AccountID == "" {
		return fmt.Errorf("账户ID不能为空")
	}

	// 验证回撤配置
	if config.Risk.Drawdown.Enabled {
		if config.Risk.Drawdown.ThresholdPercent <= 0 || config.Risk.Drawdown.ThresholdPercent > 100 {
			return fmt.Errorf("回撤熔断阈值必须在0到100之间")
		}
		prev := 0.0
		prevReduction := 0.0
		for i, tier := range config.Risk.Drawdown.ReductionTiers {
			if tier.ThresholdPct <= prev {
				return fmt.Errorf("回撤降仓档位必须按阈值严格升序配置: 第%d档", i+1)
			}
			if tier.SizeReductionPct < 0 || tier.SizeReductionPct > 100 {
				return fmt.Errorf("回撤降仓比例必须在0到100之间: 第%d档", i+1)
			}
			if tier.SizeReductionPct < prevReduction {
				return fmt.Errorf("回撤降仓比例必须随档位非递减: 第%d档", i+1)
			}
			prev = tier.ThresholdPct
			prevReduction = tier.SizeReductionPct
		}
	}

	// 验证连败配置
	cl := config.Risk.ConsecutiveLoss
	if cl.ReductionThreshold <= 0 {
		return fmt.Errorf("连败降仓阈值必须大于0")
	}
	if cl.CriticalThreshold <= cl.ReductionThreshold {
		return fmt.Errorf("连败熔断阈值必须大于降仓阈值")
	}
	if cl.ReductionFactor <= 0 || cl.ReductionFactor >= 1 {
		return fmt.Errorf("连败降仓系数必须在0到1之间")
	}
	if cl.CriticalAction != CriticalActionPause && cl.CriticalAction != CriticalActionFurtherReduce {
		return fmt.Errorf("无效的连败熔断动作: %s", cl.CriticalAction)
	}
	if cl.CriticalAction == CriticalActionFurtherReduce {
		if cl.FurtherReductionFactor <= 0 || cl.FurtherReductionFactor >= cl.ReductionFactor {
			return fmt.Errorf("进一步降仓系数必须在0和降仓系数之间")
		}
	}

	// 验证当日亏损配置
	if config.Risk.DailyLoss.Enabled {
		if config.Risk.DailyLoss.DailyLimitPct <= 0 || config.Risk.DailyLoss.DailyLimitPct > 100 {
			return fmt.Errorf("当日亏损上限必须在0到100之间")
		}
		if config.Risk.DailyLoss.WarningThresholdPct <= 0 || config.Risk.DailyLoss.WarningThresholdPct > 1 {
			return fmt.Errorf("当日亏损预警比例必须在0到1之间")
		}
	}

	// 验证集中度配置
	if config.Risk.Concentration.MaxTokenPct <= 0 || config.Risk.Concentration.MaxTokenPct > 100 {
		return fmt.Errorf("单币种集中度上限必须在0到100之间")
	}
	if config.Risk.Concentration.MaxClusterPct < config.Risk.Concentration.MaxTokenPct {
		return fmt.Errorf("集群集中度上限不能小于单币种上限")
	}

	// 验证仓位配置
	if config.Risk.Sizing.BaseSizeSOL <= 0 {
		return fmt.Errorf("基础仓位必须大于0")
	}
	if config.Risk.Sizing.HighConvictionThreshold < 0 || config.Risk.Sizing.HighConvictionThreshold > 1 {
		return fmt.Errorf("高信心阈值必须在0到1之间")
	}
	if config.Risk.Sizing.HighConvictionMultiplier < 1 {
		return fmt.Errorf("高信心加仓倍数必须大于等于1")
	}
	if config.Risk.Sizing.MaxOpenPositions <= 0 {
		return fmt.Errorf("最大持仓数必须大于0")
	}

	// 验证Redis配置
	if config.Redis.Host == "" {
		return fmt.Errorf("Redis主机不能为空")
	}
	if config.Redis.Port <= 0 || config.Redis.Port > 65535 {
		return fmt.Errorf("无效的Redis端口")
	}

	return nil
}

// GetDefaultConfig 获取默认配置（用于生成示例配置）
func GetDefaultConfig() *Config {
	return &Config{
		System: SystemConfig{
			LogLevel: "INFO",
			LogDir:   "./logs",
			DataDir:  "./data",
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			Password:  "",
			DB:        0,
			KeyPrefix: "riskgate:",
		},
		Capital: CapitalConfig{
			PollIntervalSeconds: 60,
		},
		Exchanges: ExchangesConfig{
			Binance: BinanceConfig{
				Enabled: false,
			},
		},
		Risk: RiskConfig{
			AccountID: "main",
			Drawdown: DrawdownConfig{
				Enabled:          true,
				ThresholdPercent: 50.0,
				ReductionTiers: []DrawdownTier{
					{ThresholdPct: 10.0, SizeReductionPct: 25.0},
					{ThresholdPct: 20.0, SizeReductionPct: 50.0},
					{ThresholdPct: 30.0, SizeReductionPct: 75.0},
					{ThresholdPct: 40.0, SizeReductionPct: 100.0},
				},
			},
			ConsecutiveLoss: ConsecutiveLossConfig{
				ReductionThreshold:     3,
				ReductionFactor:        0.5,
				CriticalThreshold:      5,
				CriticalAction:         CriticalActionPause,
				FurtherReductionFactor: 0.25,
			},
			DailyLoss: DailyLossConfig{
				Enabled:             true,
				DailyLimitPct:       5.0,
				WarningThresholdPct: 0.8,
			},
			Concentration: ConcentrationConfig{
				BlockDuplicate:         true,
				MaxTokenPct:            25.0,
				MaxClusterPct:          40.0,
				MaxPositionsPerCluster: 3,
			},
			Sizing: SizingConfig{
				BaseSizeSOL:              1.0,
				HighConvictionThreshold:  0.85,
				HighConvictionMultiplier: 1.5,
				MaxOpenPositions:         10,
			},
		},
	}
}
