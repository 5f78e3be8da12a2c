package minimax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resty.dev/v3"
)

// ErrEmptyTaskID 任务ID为空时不发起查询
var ErrEmptyTaskID = errors.New("task_id为空，麻烦检查费用")

// BaseResp 接口通用状态
type BaseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

// SubmitRequest 视频生成请求体
type SubmitRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt"`
	PromptOptimizer  bool     `json:"promptOptimizer"`
	FirstFrameImage  string   `json:"firstFrameImage,omitempty"`
	SubjectReference []string `json:"subjectReference,omitempty"`
}

// SubmitResponse 提交结果，Raw 为原始响应体
type SubmitResponse struct {
	TaskID   string          `json:"task_id"`
	BaseResp BaseResp        `json:"base_resp"`
	Raw      json.RawMessage `json:"-"`
}

// StatusResponse 任务状态查询结果
type StatusResponse struct {
	TaskID   string          `json:"task_id"`
	Status   string          `json:"status"`
	FileID   string          `json:"file_id"`
	BaseResp BaseResp        `json:"base_resp"`
	Raw      json.RawMessage `json:"-"`
}

type fileResponse struct {
	File struct {
		DownloadURL string `json:"download_url"`
	} `json:"file"`
	BaseResp BaseResp `json:"base_resp"`
}

// Client 海螺视频接口客户端
type Client struct {
	client *resty.Client
}

// New 创建新的接口客户端
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetAuthToken(apiKey)
	client.SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &Client{client: client}
}

// Close 释放底层连接
func (c *Client) Close() error {
	return c.client.Close()
}

// Submit 创建视频生成任务。
// 只有网络层失败才返回 error；业务失败（如余额不足）通过空的 TaskID 和 Raw 体现。
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/v1/video_generation")
	if err != nil {
		return nil, fmt.Errorf("提交视频任务失败: %w", err)
	}

	body := resp.Bytes()
	result := &SubmitResponse{Raw: json.RawMessage(body)}
	if resp.IsSuccess() {
		// 响应体无法解析时同样视为没有拿到任务ID
		_ = json.Unmarshal(body, result)
	}
	return result, nil
}

// QueryStatus 查询任务状态
func (c *Client) QueryStatus(ctx context.Context, taskID string) (*StatusResponse, error) {
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("task_id", taskID).
		Get("/v1/query/video_generation")
	if err != nil {
		return nil, fmt.Errorf("查询任务状态失败: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("查询任务状态失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	body := resp.Bytes()
	result := &StatusResponse{}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, fmt.Errorf("解析任务状态失败: %w", err)
	}
	result.Raw = json.RawMessage(body)
	return result, nil
}

// RetrieveFile 用文件ID换取临时下载地址
func (c *Client) RetrieveFile(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", errors.New("file_id 为空")
	}

	var result fileResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("file_id", fileID).
		Get("/v1/files/retrieve")
	if err != nil {
		return "", fmt.Errorf("获取下载地址失败: %w", err)
	}

	if !resp.IsSuccess() {
		return "", fmt.Errorf("获取下载地址失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	if err := json.Unmarshal(resp.Bytes(), &result); err != nil {
		return "", fmt.Errorf("解析下载地址失败: %w", err)
	}

	if result.File.DownloadURL == "" {
		return "", fmt.Errorf("响应中没有下载地址: %s", resp.String())
	}
	return result.File.DownloadURL, nil
}
