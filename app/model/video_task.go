package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// TaskStatus 本地任务状态
type TaskStatus string

const (
	TaskStatusSubmitted TaskStatus = "Submitted" // 已提交，尚未确认
	TaskStatusPending   TaskStatus = "Pending"   // 远端处理中
	TaskStatusCompleted TaskStatus = "Completed" // 已下载
	TaskStatusFailed    TaskStatus = "Failed"    // 提交被拒绝、参数不合法或远端生成失败
	TaskStatusError     TaskStatus = "Error"     // 提交时网络异常
)

// IsTerminal 终态之后不再发生任何状态变化
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusError:
		return true
	default:
		return false
	}
}

func (s TaskStatus) rank() int {
	switch s {
	case TaskStatusSubmitted:
		return 0
	case TaskStatusPending:
		return 1
	default:
		return 2
	}
}

// CanAdvanceTo 状态只能单调前进，终态不可离开
func (s TaskStatus) CanAdvanceTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// ErrorKind 任务错误分类
type ErrorKind string

const (
	ErrorKindNone         ErrorKind = ""
	ErrorKindPrecondition ErrorKind = "precondition"
	ErrorKindSubmission   ErrorKind = "submission"
	ErrorKindTransport    ErrorKind = "transport"
	ErrorKindRemote       ErrorKind = "remote"
)

// VideoTask 视频生成任务记录
type VideoTask struct {
	ID               uint       `json:"-" gorm:"primaryKey"`
	BatchID          string     `json:"batch_id" gorm:"size:36;not null;index"`
	TaskIndex        int        `json:"index" gorm:"not null;default:0"`
	TaskID           string     `json:"task_id" gorm:"index"` // 远端任务ID，提交失败时为空
	Model            string     `json:"model" gorm:"size:32"`
	Prompt           string     `json:"prompt" gorm:"type:text"`
	FirstFrameImage  string     `json:"first_frame_image"`
	PromptOptimizer  bool       `json:"prompt_optimizer"`
	SubjectReference string     `json:"subject_reference" gorm:"type:text"` // JSON 数组
	Status           TaskStatus `json:"status" gorm:"size:20;index"`
	FileID           string     `json:"file_id"`
	Error            string     `json:"error" gorm:"type:text"` // JSON
	ErrorKind        ErrorKind  `json:"error_kind" gorm:"size:20"`
	OutputFile       string     `json:"output_file"`
	SubmitTime       time.Time  `json:"submit_time"`
	CompleteTime     *time.Time `json:"complete_time"`
}

// TableName 指定表名
func (VideoTask) TableName() string {
	return "video_tasks"
}

// HasTaskID 是否拿到了远端任务ID
func (t *VideoTask) HasTaskID() bool {
	return t.TaskID != ""
}

// IsTerminal 当前是否已是终态
func (t *VideoTask) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// SetFailure 记录失败信息
func (t *VideoTask) SetFailure(status TaskStatus, kind ErrorKind, detail any) {
	t.Status = status
	t.ErrorKind = kind
	t.Error = EncodeError(detail)
}

// EncodeError 把错误详情统一编码为 JSON 文本。
// 原始响应体本身是合法 JSON 时原样保存，其余按字符串编码。
func EncodeError(detail any) string {
	switch v := detail.(type) {
	case nil:
		return ""
	case []byte:
		if len(v) > 0 && json.Valid(v) {
			return string(v)
		}
		return EncodeError(string(v))
	case json.RawMessage:
		return EncodeError([]byte(v))
	case error:
		return EncodeError(v.Error())
	}

	data, err := marshalUnescaped(detail)
	if err != nil {
		data, _ = marshalUnescaped(err.Error())
	}
	return string(data)
}

// marshalUnescaped 编码时保留 <、>、& 原样，HTML 错误页在报告中可直接阅读
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EncodeImageRefs 把参考图列表编码为 JSON 数组文本
func EncodeImageRefs(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	data, _ := json.Marshal(refs)
	return string(data)
}
