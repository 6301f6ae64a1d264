package raw

import (
	"context"

	"github.com/nerdneilsfield/transfeed/pkg/providers"
)

// Provider Raw 提供商实现（跳过翻译，直接返回原文），用于演练和离线调试
type Provider struct{}

var _ providers.TranslationProvider = (*Provider)(nil)

// New 创建新的 Raw 提供商
func New() *Provider {
	return &Provider{}
}

// Translate 直接返回原文，不报告源语言
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &providers.ProviderResponse{
		Text: req.Text,
		Metadata: map[string]string{
			"type": "raw_passthrough",
		},
	}, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "raw"
}
