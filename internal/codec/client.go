package codec

import (
	"context"
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/prompt-token-watermark/internal/bias"
	"github.com/danielpatrickdp/prompt-token-watermark/internal/vocab"
)

// #region methods
const (
	serviceName      = "/watermark.v1.ModelService/"
	MethodGenerate   = serviceName + "Generate"
	MethodNextLogits = serviceName + "NextLogits"
	MethodTokenize   = serviceName + "Tokenize"
	MethodDetokenize = serviceName + "Detokenize"
	MaxTemperature   = 2.0
	defaultMaxTokens = 256
)

// #endregion methods

// #region types
var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrMalformedReply = errors.New("malformed model reply")
)

// Request is one completion call. Either Text is set, or User with an
// optional System message.
type Request struct {
	System      string
	User        string
	Text        string
	MaxTokens   int
	Temperature float64
	TopP        float64
	LogitBias   bias.LogitBias
}

// Validate checks the request parameters.
func (r Request) Validate() error {
	switch {
	case r.Text == "" && r.User == "":
		return fmt.Errorf("%w: no text or user message", ErrInvalidRequest)
	case r.Text != "" && (r.User != "" || r.System != ""):
		return fmt.Errorf("%w: text and messages are exclusive", ErrInvalidRequest)
	case r.MaxTokens < 0:
		return fmt.Errorf("%w: max_tokens %d", ErrInvalidRequest, r.MaxTokens)
	case r.Temperature < 0 || r.Temperature > MaxTemperature || math.IsNaN(r.Temperature):
		return fmt.Errorf("%w: temperature %v not in [0, 2]", ErrInvalidRequest, r.Temperature)
	case r.TopP <= 0 || r.TopP > 1 || math.IsNaN(r.TopP):
		return fmt.Errorf("%w: top_p %v not in (0, 1]", ErrInvalidRequest, r.TopP)
	}
	for tok, v := range r.LogitBias {
		if v < -bias.MaxMagnitude || v > bias.MaxMagnitude {
			return fmt.Errorf("%w: logit bias %v for token %d", ErrInvalidRequest, v, tok)
		}
	}
	return nil
}

// Generator produces a completion for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// LogitsSource returns next-token logits for a token prefix.
type LogitsSource interface {
	NextLogits(ctx context.Context, tokens []vocab.Token) ([]float32, error)
}

// #endregion types

// #region client-struct
// Client speaks to the model-serving sidecar over gRPC. Messages are
// google.protobuf.Struct values.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to the sidecar at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn wraps an existing connection. Used for testing without a
// real sidecar.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region generate
// Generate sends a completion request.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	fields := map[string]any{
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
		"top_p":       req.TopP,
	}
	if req.Text != "" {
		fields["text"] = req.Text
	} else {
		fields["system"] = req.System
		fields["user"] = req.User
	}
	if len(req.LogitBias) > 0 {
		wire := make(map[string]any, len(req.LogitBias))
		for k, v := range req.LogitBias.Wire() {
			wire[k] = v
		}
		fields["logit_bias"] = wire
	}

	resp, err := c.call(ctx, MethodGenerate, fields)
	if err != nil {
		return "", fmt.Errorf("generate rpc: %w", err)
	}
	text, ok := resp.GetFields()["text"]
	if !ok {
		return "", fmt.Errorf("generate rpc: %w: no text", ErrMalformedReply)
	}
	return text.GetStringValue(), nil
}

// #endregion generate

// #region logits
// NextLogits asks for the logits of the token following tokens.
func (c *Client) NextLogits(ctx context.Context, tokens []vocab.Token) ([]float32, error) {
	resp, err := c.call(ctx, MethodNextLogits, map[string]any{"tokens": tokenList(tokens)})
	if err != nil {
		return nil, fmt.Errorf("next logits rpc: %w", err)
	}
	values := resp.GetFields()["logits"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, fmt.Errorf("next logits rpc: %w: empty logits", ErrMalformedReply)
	}
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v.GetNumberValue())
	}
	return out, nil
}

// #endregion logits

// #region tokenizer
// Encode tokenizes text with the model's tokenizer.
func (c *Client) Encode(ctx context.Context, text string) ([]vocab.Token, error) {
	resp, err := c.call(ctx, MethodTokenize, map[string]any{"text": text})
	if err != nil {
		return nil, fmt.Errorf("tokenize rpc: %w", err)
	}
	values := resp.GetFields()["tokens"].GetListValue().GetValues()
	out := make([]vocab.Token, len(values))
	for i, v := range values {
		n := v.GetNumberValue()
		if n != math.Trunc(n) || n < 0 {
			return nil, fmt.Errorf("tokenize rpc: %w: token %v", ErrMalformedReply, n)
		}
		out[i] = vocab.Token(n)
	}
	return out, nil
}

// Decode turns tokens back into text.
func (c *Client) Decode(ctx context.Context, tokens []vocab.Token) (string, error) {
	resp, err := c.call(ctx, MethodDetokenize, map[string]any{"tokens": tokenList(tokens)})
	if err != nil {
		return "", fmt.Errorf("detokenize rpc: %w", err)
	}
	return resp.GetFields()["text"].GetStringValue(), nil
}

// #endregion tokenizer

// #region helpers
func (c *Client) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	var resp *structpb.Struct
	err = withRetry(ctx, method, func() error {
		resp = &structpb.Struct{}
		return c.cc.Invoke(ctx, method, req, resp)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func tokenList(tokens []vocab.Token) []any {
	out := make([]any, len(tokens))
	for i, t := range tokens {
		out[i] = int(t)
	}
	return out
}

// #endregion helpers
