package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"hailuo-batch/app/model"
)

// ReportFileName 批次报告文件名
const ReportFileName = "generation_report.json"

// ReportPath 返回输出目录下的报告路径
func ReportPath(outputDir string) string {
	return filepath.Join(outputDir, ReportFileName)
}

// WriteReport 将批次快照写为 JSON 数组，写入临时文件后改名
func WriteReport(report *model.BatchReport) (string, error) {
	path := ReportPath(report.OutputDir)

	data, err := json.MarshalIndent(report.Entries(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化报告失败: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("写入报告失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("写入报告失败: %w", err)
	}

	report.Path = path
	return path, nil
}
