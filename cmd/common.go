package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"hailuo-batch/app/config"
	"hailuo-batch/app/database"
	"hailuo-batch/app/logger"
	"hailuo-batch/app/store"
	"hailuo-batch/app/utils/minimax"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// flagBinding 命令行参数到配置键的映射，参数显式给出时覆盖配置文件和环境变量
type flagBinding map[string]string

func (b flagBinding) bind(cmd *cobra.Command) error {
	for flag, key := range b {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("未知参数: %s", flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

var batchFlags = flagBinding{
	"api-key":        "minimax.api_key",
	"output-dir":     "batch.output_dir",
	"max-workers":    "batch.max_workers",
	"check-interval": "batch.check_interval",
	"max-rounds":     "batch.max_rounds",
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("api-key", "", "MiniMax API 密钥")
	cmd.Flags().String("output-dir", "output", "视频输出目录")
	cmd.Flags().Int("max-workers", 3, "最大并发数")
	cmd.Flags().Int("check-interval", 5, "状态检查间隔（秒）")
	cmd.Flags().Int("max-rounds", 0, "最大轮询轮数，0 表示不限制")
}

// app 命令运行期间共享的依赖
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *gorm.DB
	store  *store.TaskStore
	client *minimax.Client
}

// setup 加载配置并打开日志、数据库和接口客户端，needClient 为 true 时要求配置了 API 密钥
func setup(cmd *cobra.Command, bindings flagBinding, needClient bool) (*app, error) {
	if err := bindings.bind(cmd); err != nil {
		return nil, err
	}

	cfg, err := config.LoadE()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: logger.New(cfg.Log)}

	if needClient {
		if cfg.MiniMax.APIKey == "" {
			a.log.Close()
			return nil, errors.New("未设置 API 密钥，请使用 --api-key、HAILUO_MINIMAX_API_KEY 或配置文件 minimax.api_key")
		}
		a.client = minimax.New(cfg.MiniMax.APIKey, cfg.MiniMax.BaseURL, cfg.MiniMax.RequestTimeout())
	}

	a.db, err = database.Open(cfg.Database.Path, a.log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("数据库初始化失败: %w", err)
	}
	a.store = store.NewTaskStore(a.db)

	return a, nil
}

func (a *app) close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if err := database.Close(a.db); err != nil {
		a.log.Errorf("关闭数据库连接失败: %v", err)
	}
	_ = a.log.Close()
}

// printJSON 以缩进 JSON 输出到标准输出
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
