package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	bedrockProvider = "bedrock"

	// DefaultBedrockModel is used when no model is configured.
	DefaultBedrockModel = "anthropic.claude-3-haiku-20240307-v1:0"

	bedrockMaxTokens = 500
)

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockService describes images through the Bedrock Converse API. Like the
// OpenAI service it keeps no conversation state.
type BedrockService struct {
	client converseAPI
	model  string
}

// NewBedrock loads the default AWS credential chain for region and creates a
// Bedrock service.
func NewBedrock(ctx context.Context, region, model string) (*BedrockService, error) {
	if region == "" {
		return nil, errors.New("bedrock region is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newBedrockService(bedrockruntime.NewFromConfig(cfg), model), nil
}

func newBedrockService(client converseAPI, model string) *BedrockService {
	if model == "" {
		model = DefaultBedrockModel
	}
	return &BedrockService{client: client, model: model}
}

// Name returns the provider identifier.
func (s *BedrockService) Name() string {
	return bedrockProvider
}

// Describe sends one Converse request with the image and prompt.
func (s *BedrockService) Describe(ctx context.Context, req Request) (string, error) {
	var content []types.ContentBlock
	if len(req.Image) > 0 {
		content = append(content, &types.ContentBlockMemberImage{
			Value: types.ImageBlock{
				Format: types.ImageFormatJpeg,
				Source: &types.ImageSourceMemberBytes{Value: req.Image},
			},
		})
	}
	content = append(content, &types.ContentBlockMemberText{
		Value: BuildPrompt(req.Query, req.History, req.Language),
	})

	out, err := s.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(s.model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: SystemInstruction(req.Language)},
		},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: content,
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(bedrockMaxTokens),
		},
	})
	if err != nil {
		return "", fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("bedrock: unexpected output type %T", out.Output)
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	return b.String(), nil
}

// Forget is a no-op; the service holds no conversation state.
func (s *BedrockService) Forget(string) {}
