// Package paramstore reads configuration and secrets from SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
// Consumers (e.g. the OpenAI client) should depend on this interface rather
// than the concrete *Client so they remain testable without real AWS calls.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ErrParameterNotFound is returned when the parameter does not exist.
var ErrParameterNotFound = errors.New("paramstore: parameter not found")

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	p, err := c.get(ctx, name)
	if err != nil {
		return "", err
	}
	return *p.Value, nil
}

// GetParameterVersion returns the value together with its version so callers
// can skip re-parsing unchanged parameters.
func (c *Client) GetParameterVersion(ctx context.Context, name string) (string, int64, error) {
	p, err := c.get(ctx, name)
	if err != nil {
		return "", 0, err
	}
	return *p.Value, p.Version, nil
}

func (c *Client) get(ctx context.Context, name string) (*types.Parameter, error) {
	if c.api == nil {
		return nil, errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *types.ParameterNotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: %q", ErrParameterNotFound, name)
		}
		return nil, fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return nil, errors.New("paramstore: parameter missing value")
	}
	return out.Parameter, nil
}
