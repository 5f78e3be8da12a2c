package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DownloadConfig 下载配置
type DownloadConfig struct {
	UserAgent     string        // User-Agent
	Timeout       time.Duration // 超时时间
	OverwriteFile bool          // 是否覆盖已存在的文件
}

// DefaultDownloadConfig 默认下载配置
func DefaultDownloadConfig() *DownloadConfig {
	return &DownloadConfig{
		UserAgent:     "hailuo-batch/1.0",
		Timeout:       time.Minute * 30,
		OverwriteFile: true,
	}
}

// DownloadResult 下载结果
type DownloadResult struct {
	Size     int64         // 下载的文件大小
	Duration time.Duration // 下载耗时
	Speed    float64       // 下载速度 (MB/s)
	Path     string        // 保存的文件路径
}

// DownloadFromURL 将 URL 内容流式写入 savePath。
// 先写入同目录的 .tmp 文件，校验完整后再改名，失败时不会留下残缺文件。
func DownloadFromURL(ctx context.Context, url, savePath string, config *DownloadConfig) (result *DownloadResult, err error) {
	if config == nil {
		config = DefaultDownloadConfig()
	}

	if !config.OverwriteFile {
		if _, err := os.Stat(savePath); err == nil {
			return nil, fmt.Errorf("文件已存在: %s", savePath)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("User-Agent", config.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity") // 禁用压缩，避免 Content-Length 不匹配

	client := &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("重定向次数过多")
			}
			req.Header.Set("User-Agent", config.UserAgent)
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("HTTP请求失败，状态码: %d, 响应: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return nil, fmt.Errorf("创建保存目录失败: %w", err)
	}

	tmpPath := savePath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("创建文件失败: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(tmpPath)
		}
	}()

	startTime := time.Now()

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("写入文件内容失败: %w", err)
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		err = fmt.Errorf("下载不完整: 期望 %d bytes, 实际 %d bytes", resp.ContentLength, written)
		return nil, err
	}
	if written == 0 {
		err = fmt.Errorf("下载的文件为空: %s", url)
		return nil, err
	}

	if err = file.Sync(); err != nil {
		return nil, fmt.Errorf("刷新文件到磁盘失败: %w", err)
	}
	if err = file.Close(); err != nil {
		return nil, fmt.Errorf("关闭文件失败: %w", err)
	}

	if err = os.Rename(tmpPath, savePath); err != nil {
		return nil, fmt.Errorf("重命名文件失败: %w", err)
	}

	duration := time.Since(startTime)
	return &DownloadResult{
		Size:     written,
		Duration: duration,
		Speed:    float64(written) / duration.Seconds() / 1024 / 1024,
		Path:     savePath,
	}, nil
}
