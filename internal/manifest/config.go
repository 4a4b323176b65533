package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/your-org/handler-harness/internal/guard"
)

// DefaultNamespace is the CloudWatch namespace used when none is set.
const DefaultNamespace = "FileProcessor"

// Lookup resolves configuration keys. envfile.Env satisfies it.
type Lookup interface {
	Lookup(key string) (string, bool)
}

// Config is the handler's settings, read from explicit configuration
// rather than the process environment.
type Config struct {
	Table        string `env:"MANIFEST_TABLE" validate:"required"`
	Namespace    string `env:"METRIC_NAMESPACE" validate:"required"`
	MaxSize      int64  `env:"MAX_OBJECT_BYTES" validate:"gt=0"`
	ProfileParam string `env:"PROFILE_PARAM" validate:"omitempty,startswith=/"`
}

// ConfigFrom builds and validates a Config from env.
func ConfigFrom(env Lookup) (Config, error) {
	cfg := Config{Namespace: DefaultNamespace, MaxSize: guard.DefaultMaxSize}
	if v, ok := env.Lookup("MANIFEST_TABLE"); ok {
		cfg.Table = v
	}
	if v, ok := env.Lookup("METRIC_NAMESPACE"); ok && v != "" {
		cfg.Namespace = v
	}
	if v, ok := env.Lookup("MAX_OBJECT_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("MAX_OBJECT_BYTES: %w", err)
		}
		cfg.MaxSize = n
	}
	if v, ok := env.Lookup("PROFILE_PARAM"); ok {
		cfg.ProfileParam = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags on c.
func (c Config) Validate() error {
	v, trans, err := newValidator("en")
	if err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fe.Translate(trans))
		}
		sort.Strings(msgs)
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func newValidator(locale string) (*validator.Validate, ut.Translator, error) {
	translator := en.New()
	uni := ut.New(translator, translator)

	trans, found := uni.GetTranslator(locale)
	if !found {
		return nil, nil, fmt.Errorf("%s translator not found", locale)
	}

	v := validator.New()
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, nil, err
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("env")
	})
	return v, trans, nil
}
