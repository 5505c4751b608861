package config

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Service 配置服务，支持配置热更新
// 通过atomic.Value保存配置快照，读取方拿到的永远是完整一致的配置
type Service struct {
	filePath string
	viper    *viper.Viper
	current  atomic.Value // *Config
	logger   *zap.Logger
}

// NewService 创建配置服务并加载初始配置
func NewService(filePath string, logger *zap.Logger) (*Service, error) {
	cfg, err := LoadConfig(filePath)
	if err != nil {
		return nil, err
	}

	s := &Service{
		filePath: filePath,
		viper:    viper.New(),
		logger:   logger.With(zap.String("component", "config_service")),
	}
	s.viper.SetConfigFile(filePath)
	s.current.Store(cfg)
	return s, nil
}

// Get 获取当前配置快照
func (s *Service) Get() *Config {
	return s.current.Load().(*Config)
}

// Watch 启动配置文件监听，文件变更时自动重新加载
// 新配置验证失败时保留旧配置继续运行
func (s *Service) Watch() {
	s.viper.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Info("检测到配置文件变更", zap.String("file", e.Name))

		newCfg, err := LoadConfig(s.filePath)
		if err != nil {
			s.logger.Error("重新加载配置失败，继续使用旧配置", zap.Error(err))
			return
		}

		s.current.Store(newCfg)
		s.logger.Info("配置热更新成功")
	})
	s.viper.WatchConfig()
}

// Reload 手动重新加载配置
func (s *Service) Reload() error {
	newCfg, err := LoadConfig(s.filePath)
	if err != nil {
		return fmt.Errorf("重新加载配置失败: %w", err)
	}
	s.current.Store(newCfg)
	return nil
}
