// Package polly provides a TTS provider backed by Amazon Polly. It requests
// raw PCM so its output is interchangeable with the ElevenLabs stream.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

const (
	defaultRegion     = "us-east-1"
	defaultEngine     = "neural"
	defaultSampleRate = 16000
	frameSize         = 3200 // 100ms of 16 kHz 16-bit mono
)

// Client is the subset of the Polly API used here.
type Client interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// Option configures a Provider.
type Option func(*Provider)

// WithRegion sets the AWS region. Default: us-east-1.
func WithRegion(region string) Option {
	return func(p *Provider) { p.region = region }
}

// WithEngine selects "neural" or "standard". Default: neural.
func WithEngine(engine string) Option {
	return func(p *Provider) { p.engine = engine }
}

// WithSampleRate sets the PCM sample rate (8000 or 16000).
func WithSampleRate(hz int) Option {
	return func(p *Provider) { p.sampleRate = hz }
}

// WithClient injects a Polly client instead of loading the default AWS
// configuration on first use.
func WithClient(c Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider implements tts.Provider.
type Provider struct {
	region     string
	engine     string
	sampleRate int

	mu     sync.Mutex
	client Client
}

// New creates a Polly Provider. Credentials come from the default AWS
// chain (environment, shared config, instance role).
func New(opts ...Option) *Provider {
	p := &Provider{region: defaultRegion, engine: defaultEngine, sampleRate: defaultSampleRate}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) resolveClient(ctx context.Context) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return nil, fmt.Errorf("polly: load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(cfg)
	return p.client, nil
}

// Synthesize requests PCM audio for text and re-chunks it into frames.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("polly: voice.ID must not be empty")
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	engine := pollytypes.EngineStandard
	if p.engine == "neural" {
		engine = pollytypes.EngineNeural
	}
	rate := strconv.Itoa(p.sampleRate)
	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   &rate,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voice.ID),
	})
	if err != nil {
		return nil, classify(err)
	}
	if out == nil || out.AudioStream == nil {
		return nil, errors.New("polly: empty audio stream")
	}

	audio := make(chan []byte, 16)
	go func() {
		defer close(audio)
		defer out.AudioStream.Close()
		for {
			buf := make([]byte, frameSize)
			n, err := io.ReadFull(out.AudioStream, buf)
			if n > 0 {
				select {
				case audio <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					slog.Warn("polly: audio stream read failed", "err", err)
				}
				return
			}
		}
	}()
	return audio, nil
}

// ListVoices returns the voices supported by the configured engine.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}
	in := &polly.DescribeVoicesInput{Engine: pollytypes.Engine(p.engine)}
	var voices []tts.Voice
	for {
		out, err := client.DescribeVoices(ctx, in)
		if err != nil {
			return nil, classify(err)
		}
		for _, v := range out.Voices {
			voices = append(voices, tts.Voice{
				ID:       string(v.Id),
				Name:     deref(v.Name),
				Provider: "polly",
				Language: string(v.LanguageCode),
				Metadata: map[string]string{"gender": string(v.Gender)},
			})
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return voices, nil
		}
		in.NextToken = out.NextToken
	}
}

// classify annotates Polly API errors with their code so logs and the
// fallback group can tell throttling from bad input.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("polly: %s: %w", apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("polly: %w", err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ tts.Provider = (*Provider)(nil)
