package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// VideoModel 视频生成模型
type VideoModel string

const (
	ModelT2V01Director VideoModel = "T2V-01-Director"
	ModelI2V01Director VideoModel = "I2V-01-Director"
	ModelI2V01Live     VideoModel = "I2V-01-live"
	ModelS2V01         VideoModel = "S2V-01"
	ModelT2V01         VideoModel = "T2V-01"
	ModelI2V01         VideoModel = "I2V-01"
)

// SupportedModels 返回支持的全部模型
func SupportedModels() []VideoModel {
	return []VideoModel{ModelT2V01Director, ModelI2V01Director, ModelI2V01Live, ModelS2V01, ModelT2V01, ModelI2V01}
}

func (m VideoModel) IsSupported() bool {
	for _, s := range SupportedModels() {
		if m == s {
			return true
		}
	}
	return false
}

// IsTextToVideo 文本生成视频
func (m VideoModel) IsTextToVideo() bool { return strings.HasPrefix(string(m), "T2V") }

// IsImageToVideo 首帧图片生成视频
func (m VideoModel) IsImageToVideo() bool { return strings.HasPrefix(string(m), "I2V") }

// IsSubjectReference 角色参考生成视频
func (m VideoModel) IsSubjectReference() bool { return m == ModelS2V01 }

// ErrPrecondition 任务参数不满足模型要求，提交前即被拦截
var ErrPrecondition = errors.New("任务参数校验失败")

// ImageRefs 图片引用列表，JSON 中既可以是单个字符串也可以是数组
type ImageRefs []string

func (r *ImageRefs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if single == "" {
			*r = nil
		} else {
			*r = ImageRefs{single}
		}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("subject_reference 必须是字符串或字符串数组: %w", err)
	}
	*r = list
	return nil
}

// TaskSpec 单个视频生成任务的输入参数
type TaskSpec struct {
	Model            VideoModel `json:"model" validate:"required,video_model"`
	Prompt           string     `json:"prompt,omitempty"`
	FirstFrameImage  string     `json:"first_frame_image,omitempty"`
	PromptOptimizer  *bool      `json:"prompt_optimizer,omitempty"`
	SubjectReference ImageRefs  `json:"subject_reference,omitempty" validate:"dive,required"`
}

// OptimizerEnabled 未显式设置时默认开启提示词优化
func (s TaskSpec) OptimizerEnabled() bool {
	return s.PromptOptimizer == nil || *s.PromptOptimizer
}

var specValidator = newSpecValidator()

func newSpecValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("video_model", func(fl validator.FieldLevel) bool {
		return VideoModel(fl.Field().String()).IsSupported()
	})
	v.RegisterStructValidation(validateModeInputs, TaskSpec{})
	return v
}

// validateModeInputs 按模型类型检查必填输入
func validateModeInputs(sl validator.StructLevel) {
	spec := sl.Current().Interface().(TaskSpec)

	switch {
	case spec.Model.IsTextToVideo():
		if strings.TrimSpace(spec.Prompt) == "" {
			sl.ReportError(spec.Prompt, "prompt", "Prompt", "t2v_prompt", "")
		}
	case spec.Model.IsImageToVideo():
		if strings.TrimSpace(spec.FirstFrameImage) == "" {
			sl.ReportError(spec.FirstFrameImage, "first_frame_image", "FirstFrameImage", "i2v_image", "")
		}
	case spec.Model.IsSubjectReference():
		if len(spec.SubjectReference) == 0 {
			sl.ReportError(spec.SubjectReference, "subject_reference", "SubjectReference", "s2v_subject", "")
		}
	}
}

var ruleMessages = map[string]string{
	"required":    "不能为空",
	"video_model": "不是支持的模型",
	"t2v_prompt":  "使用T2V模型时必须提供提示词",
	"i2v_image":   "使用I2V模型时必须提供首帧图片",
	"s2v_subject": "使用S2V模型时必须提供角色参考图",
}

// Validate 检查任务参数，失败时返回包装了 ErrPrecondition 的错误
func (s TaskSpec) Validate() error {
	err := specValidator.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := ruleMessages[fe.Tag()]
		if !ok {
			msg = "校验规则 " + fe.Tag() + " 未通过"
		}
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), msg))
	}
	return fmt.Errorf("%w: model=%s, %s", ErrPrecondition, s.Model, strings.Join(msgs, "; "))
}

// ReadTaskSpecs 从 JSON 数组读取任务列表
func ReadTaskSpecs(r io.Reader) ([]TaskSpec, error) {
	var specs []TaskSpec
	if err := json.NewDecoder(r).Decode(&specs); err != nil {
		return nil, fmt.Errorf("解析任务配置失败: %w", err)
	}
	return specs, nil
}

// LoadTaskSpecs 从 JSON 文件读取任务列表
func LoadTaskSpecs(path string) ([]TaskSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开任务配置文件失败: %w", err)
	}
	defer f.Close()

	return ReadTaskSpecs(f)
}
