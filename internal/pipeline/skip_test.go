package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldDiscard(t *testing.T) {
	skip := map[string]struct{}{"ja": {}}

	assert.True(t, ShouldDiscard("zh-CN", "zh-CN", nil))
	assert.True(t, ShouldDiscard("zh-cn", "zh-CN", nil), "case-insensitive")
	assert.True(t, ShouldDiscard("JA", "en", skip))
	assert.False(t, ShouldDiscard("en", "zh-CN", skip))
	assert.False(t, ShouldDiscard("", "zh-CN", skip), "unknown never skips")
	assert.False(t, ShouldDiscard("  ", "zh-CN", skip))
}
