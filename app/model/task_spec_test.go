package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTaskSpecs(t *testing.T) {
	input := `[
		{"model": "T2V-01-Director", "prompt": "海边日落"},
		{"model": "I2V-01", "prompt": "让画面动起来", "first_frame_image": "https://example.com/a.jpg", "prompt_optimizer": false},
		{"model": "S2V-01", "prompt": "挥手", "subject_reference": "face.jpg"},
		{"model": "S2V-01", "prompt": "跳舞", "subject_reference": ["a.jpg", "b.jpg"]}
	]`

	specs, err := ReadTaskSpecs(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, specs, 4)

	assert.Equal(t, ModelT2V01Director, specs[0].Model)
	assert.True(t, specs[0].OptimizerEnabled())
	assert.False(t, specs[1].OptimizerEnabled())
	assert.Equal(t, ImageRefs{"face.jpg"}, specs[2].SubjectReference)
	assert.Equal(t, ImageRefs{"a.jpg", "b.jpg"}, specs[3].SubjectReference)

	for _, spec := range specs {
		assert.NoError(t, spec.Validate())
	}
}

func TestReadTaskSpecsRejectsBadSubjectReference(t *testing.T) {
	_, err := ReadTaskSpecs(strings.NewReader(`[{"model": "S2V-01", "subject_reference": 42}]`))
	assert.Error(t, err)
}

func TestTaskSpecValidate(t *testing.T) {
	cases := []struct {
		name    string
		spec    TaskSpec
		message string
	}{
		{"unknown model", TaskSpec{Model: "V2V-99", Prompt: "x"}, "不是支持的模型"},
		{"missing model", TaskSpec{Prompt: "x"}, "不能为空"},
		{"t2v without prompt", TaskSpec{Model: ModelT2V01}, "必须提供提示词"},
		{"i2v without image", TaskSpec{Model: ModelI2V01Live, Prompt: "x"}, "必须提供首帧图片"},
		{"s2v without subject", TaskSpec{Model: ModelS2V01, Prompt: "x"}, "必须提供角色参考图"},
		{"s2v with empty subject", TaskSpec{Model: ModelS2V01, SubjectReference: ImageRefs{""}}, "不能为空"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPrecondition)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestImageToVideoAllowsEmptyPrompt(t *testing.T) {
	spec := TaskSpec{Model: ModelI2V01Director, FirstFrameImage: "frame.png"}
	assert.NoError(t, spec.Validate())
}
