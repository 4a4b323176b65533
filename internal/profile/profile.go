package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
)

// SSMAPI abstracts the SSM GetParameter operation for testability.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Profile holds handler settings stored as a JSON parameter. Zero fields
// leave the environment configuration in place.
type Profile struct {
	MaxSize   int64  `json:"maxSize"`
	Namespace string `json:"namespace"`
}

// Loader retrieves and caches profiles from SSM Parameter Store.
type Loader struct {
	client SSMAPI
	cache  map[string]Profile
	mu     sync.Mutex
	log    *zap.SugaredLogger
}

// New creates a Loader using the provided SSM client and logger.
func New(client SSMAPI, log *zap.SugaredLogger) *Loader {
	return &Loader{client: client, cache: make(map[string]Profile), log: log}
}

// Load fetches the named profile, decrypting SecureString values. Results
// are cached for the life of the Loader.
func (l *Loader) Load(ctx context.Context, name string) (Profile, error) {
	l.mu.Lock()
	if p, ok := l.cache[name]; ok {
		l.mu.Unlock()
		return p, nil
	}
	l.mu.Unlock()

	out, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{Name: &name, WithDecryption: aws.Bool(true)})
	if err != nil {
		return Profile{}, fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return Profile{}, fmt.Errorf("parameter %s has no value", name)
	}

	var p Profile
	if err := json.Unmarshal([]byte(*out.Parameter.Value), &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", name, err)
	}
	l.log.Debugw("profile loaded", "name", name, "maxSize", p.MaxSize)

	l.mu.Lock()
	l.cache[name] = p
	l.mu.Unlock()
	return p, nil
}
