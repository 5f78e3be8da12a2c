package cmd

import (
	"fmt"

	"hailuo-batch/app/auth"
	"hailuo-batch/app/config"
	"hailuo-batch/app/utils"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发访问任务查询服务的令牌",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, err := config.LoadE()
		if err != nil {
			return err
		}

		token, err := auth.NewJWTService(cfg.JWT).GenerateToken(subject, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "admin", "调用方名称")
	tokenCmd.Flags().Duration("ttl", 0, "有效期，默认使用 jwt.expire_time")
	rootCmd.AddCommand(tokenCmd)
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "生成 auth.password_hash 配置使用的密码哈希",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := utils.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
