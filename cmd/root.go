package cmd

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "hailuo-batch",
	Short:   "海螺视频批量生成工具",
	Long:    "批量提交 MiniMax 海螺视频生成任务，跟踪状态并下载生成的视频",
	Version: "1.0.0",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认查找 ./data/config.yaml 和 ./config.yaml）")
}

// initConfig 读取配置文件和环境变量（如果设置）
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 添加配置文件搜索路径
		viper.AddConfigPath("./data") // 相对于当前工作目录的 data 文件夹
		viper.AddConfigPath(".")      // 当前目录
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 环境变量 HAILUO_MINIMAX_API_KEY 对应 minimax.api_key
	viper.SetEnvPrefix("HAILUO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 显式指定的配置文件必须可读，默认路径下没有配置文件时使用默认值
	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			log.Println("配置文件读取失败:", err)
			os.Exit(1)
		}
	}
}
