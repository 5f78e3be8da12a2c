package service

import (
	"context"
	"errors"
	"fmt"

	"hailuo-batch/app/logger"
	"hailuo-batch/app/utils/downloader"
)

// ArtifactDownloader 用文件ID换取下载地址并保存视频
type ArtifactDownloader struct {
	client RemoteClient
	log    *logger.Logger
	config *downloader.DownloadConfig
}

// NewArtifactDownloader 创建视频下载器
func NewArtifactDownloader(client RemoteClient, log *logger.Logger) *ArtifactDownloader {
	return &ArtifactDownloader{
		client: client,
		log:    log,
		config: downloader.DefaultDownloadConfig(),
	}
}

// Download 下载单个视频到 dest
func (d *ArtifactDownloader) Download(ctx context.Context, fileID, dest string) error {
	if dest == "" {
		return errors.New("保存路径为空")
	}

	url, err := d.client.RetrieveFile(ctx, fileID)
	if err != nil {
		return err
	}
	d.log.Debugf("视频下载链接: %s", url)

	result, err := downloader.DownloadFromURL(ctx, url, dest, d.config)
	if err != nil {
		return fmt.Errorf("文件下载失败: %w", err)
	}

	d.log.Infof("文件下载完成: %s, 大小: %.2f MB, 耗时: %.2fs, 速度: %.2f MB/s",
		result.Path, float64(result.Size)/(1024*1024), result.Duration.Seconds(), result.Speed)
	return nil
}

// DownloadItem 批量下载的单项
type DownloadItem struct {
	FileID string `json:"file_id"`
	Dest   string `json:"output_file"`
}

// DownloadOutcome 单项下载结果
type DownloadOutcome struct {
	DownloadItem
	Err error
}

// DownloadAll 并发下载多个视频，单项失败不影响其他项
func (d *ArtifactDownloader) DownloadAll(ctx context.Context, pool *WorkerPool, items []DownloadItem) []DownloadOutcome {
	outcomes := make([]DownloadOutcome, len(items))
	pool.Each(len(items), func(i int) {
		err := d.Download(ctx, items[i].FileID, items[i].Dest)
		if err != nil {
			d.log.Errorf("下载失败: file_id=%s, 错误: %v", items[i].FileID, err)
		}
		outcomes[i] = DownloadOutcome{DownloadItem: items[i], Err: err}
	})
	return outcomes
}
