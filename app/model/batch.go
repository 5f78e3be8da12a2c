package model

import (
	"encoding/json"
	"time"
)

// VideoBatch 一次批量运行的参数与结果位置
type VideoBatch struct {
	ID            uint       `json:"-" gorm:"primaryKey"`
	BatchID       string     `json:"batch_id" gorm:"size:36;uniqueIndex"`
	TasksFile     string     `json:"tasks_file"`
	OutputDir     string     `json:"output_dir"`
	MaxWorkers    int        `json:"max_workers"`
	CheckInterval int        `json:"check_interval"` // 秒
	TaskCount     int        `json:"task_count"`
	ReportPath    string     `json:"report_path"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	Running       bool       `json:"running" gorm:"-"` // 是否仍在本进程中运行
}

// TableName 指定表名
func (VideoBatch) TableName() string {
	return "video_batches"
}

// ReportEntry 报告中的单个任务
type ReportEntry struct {
	Index        int             `json:"index"`
	TaskID       string          `json:"task_id"`
	Model        string          `json:"model"`
	Status       TaskStatus      `json:"status"`
	OutputFile   string          `json:"output_file"`
	FileID       string          `json:"file_id,omitempty"`
	Error        json.RawMessage `json:"error,omitempty"`
	ErrorKind    ErrorKind       `json:"error_kind,omitempty"`
	SubmitTime   time.Time       `json:"submit_time"`
	CompleteTime *time.Time      `json:"complete_time,omitempty"`
}

// BatchReport 批次结束时的任务快照，按输入顺序排列
type BatchReport struct {
	BatchID   string
	OutputDir string
	Path      string
	Tasks     []VideoTask
}

// Entries 生成写入报告文件的条目
func (r *BatchReport) Entries() []ReportEntry {
	entries := make([]ReportEntry, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		entry := ReportEntry{
			Index:        t.TaskIndex,
			TaskID:       t.TaskID,
			Model:        t.Model,
			Status:       t.Status,
			OutputFile:   t.OutputFile,
			FileID:       t.FileID,
			ErrorKind:    t.ErrorKind,
			SubmitTime:   t.SubmitTime,
			CompleteTime: t.CompleteTime,
		}
		if t.Error != "" {
			entry.Error = json.RawMessage(t.Error)
		}
		entries = append(entries, entry)
	}
	return entries
}

// Count 按状态统计任务数
func (r *BatchReport) Count(status TaskStatus) int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}
