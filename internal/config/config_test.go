package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "默认配置合法",
			modify:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "账户ID为空",
			modify:  func(c *Config) { c.Risk.AccountID = "" },
			wantErr: "账户ID不能为空",
		},
		{
			name: "回撤档位非升序",
			modify: func(c *Config) {
				c.Risk.Drawdown.ReductionTiers = []DrawdownTier{
					{ThresholdPct: 20.0, SizeReductionPct: 50.0},
					{ThresholdPct: 10.0, SizeReductionPct: 25.0},
				}
			},
			wantErr: "回撤降仓档位必须按阈值严格升序配置",
		},
		{
			name: "回撤降仓比例超过100",
			modify: func(c *Config) {
				c.Risk.Drawdown.ReductionTiers = []DrawdownTier{
					{ThresholdPct: 10.0, SizeReductionPct: 150.0},
				}
			},
			wantErr: "回撤降仓比例必须在0到100之间",
		},
		{
			name: "回撤降仓比例随档位递减",
			modify: func(c *Config) {
				c.Risk.Drawdown.ReductionTiers = []DrawdownTier{
					{ThresholdPct: 10.0, SizeReductionPct: 50.0},
					{ThresholdPct: 20.0, SizeReductionPct: 25.0},
				}
			},
			wantErr: "回撤降仓比例必须随档位非递减",
		},
		{
			name: "连败熔断阈值不大于降仓阈值",
			modify: func(c *Config) {
				c.Risk.ConsecutiveLoss.ReductionThreshold = 5
				c.Risk.ConsecutiveLoss.CriticalThreshold = 5
			},
			wantErr: "连败熔断阈值必须大于降仓阈值",
		},
		{
			name: "无效的连败熔断动作",
			modify: func(c *Config) {
				c.Risk.ConsecutiveLoss.CriticalAction = "halt"
			},
			wantErr: "无效的连败熔断动作",
		},
		{
			name: "进一步降仓系数不小于降仓系数",
			modify: func(c *Config) {
				c.Risk.ConsecutiveLoss.CriticalAction = CriticalActionFurtherReduce
				c.Risk.ConsecutiveLoss.FurtherReductionFactor = 0.6
			},
			wantErr: "进一步降仓系数必须在0和降仓系数之间",
		},
		{
			name: "当日亏损上限非法",
			modify: func(c *Config) {
				c.Risk.DailyLoss.DailyLimitPct = 0
			},
			wantErr: "当日亏损上限必须在0到100之间",
		},
		{
			name: "集群上限小于币种上限",
			modify: func(c *Config) {
				c.Risk.Concentration.MaxClusterPct = 10.0
			},
			wantErr: "集群集中度上限不能小于单币种上限",
		},
		{
			name: "基础仓位非法",
			modify: func(c *Config) {
				c.Risk.Sizing.BaseSizeSOL = 0
			},
			wantErr: "基础仓位必须大于0",
		},
		{
			name: "Redis主机为空",
			modify: func(c *Config) {
				c.Redis.Host = ""
			},
			wantErr: "Redis主机不能为空",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
system:
  log_level: DEBUG
  log_dir: ./logs
redis:
  host: localhost
  port: 6379
  key_prefix: "riskgate:"
capital:
  poll_interval_seconds: 30
risk:
  account_id: main
  drawdown:
    enabled: true
    threshold_percent: 50.0
    reduction_tiers:
      - threshold_pct: 10.0
        size_reduction_pct: 25.0
      - threshold_pct: 20.0
        size_reduction_pct: 50.0
  consecutive_loss:
    reduction_threshold: 3
    reduction_factor: 0.5
    critical_threshold: 5
    critical_action: pause
  daily_loss:
    enabled: true
    daily_limit_pct: 5.0
    warning_threshold_pct: 0.8
  concentration:
    block_duplicate: true
    max_token_pct: 25.0
    max_cluster_pct: 40.0
    max_positions_per_cluster: 3
  sizing:
    base_size_sol: 1.0
    high_conviction_threshold: 0.85
    high_conviction_multiplier: 1.5
    max_open_positions: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.System.LogLevel)
	assert.Equal(t, "main", cfg.Risk.AccountID)
	assert.Len(t, cfg.Risk.Drawdown.ReductionTiers, 2)
	assert.Equal(t, 50.0, cfg.Risk.Drawdown.ReductionTiers[1].SizeReductionPct)
	assert.Equal(t, CriticalActionPause, cfg.Risk.ConsecutiveLoss.CriticalAction)
	assert.Equal(t, 5.0, cfg.Risk.DailyLoss.DailyLimitPct)
	assert.Equal(t, 30, cfg.Capital.PollIntervalSeconds)
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}
