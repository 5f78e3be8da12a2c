package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hailuo-batch/app/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动任务查询服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, flagBinding{
			"api-key": "minimax.api_key",
			"port":    "server.port",
		}, true)
		if err != nil {
			return err
		}
		defer a.close()

		srv, err := server.New(a.cfg, a.log, a.store, a.client)
		if err != nil {
			return err
		}

		// 在协程中启动服务器
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				a.log.Fatalf("启动服务器失败: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		a.log.Info("收到关闭信号，正在关闭服务器...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Errorf("服务器关闭失败: %v", err)
		}
		a.log.Info("服务器已退出")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("api-key", "", "MiniMax API 密钥")
	serveCmd.Flags().String("port", "5000", "监听端口")
	rootCmd.AddCommand(serveCmd)
}
