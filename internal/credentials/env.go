package credentials

import (
	"context"
	"strings"

	"github.com/spf13/viper"
)

// Env resolves secrets from environment variables (and any config keys
// already loaded into v). Names are upper-cased and prefixed with Prefix.
type Env struct {
	v      *viper.Viper
	prefix string
}

func NewEnv(prefix string) *Env {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Env{v: v, prefix: prefix}
}

// NewEnvFrom wraps an existing viper instance, e.g. one with a "secrets"
// section loaded from the config file.
func NewEnvFrom(v *viper.Viper, prefix string) *Env {
	return &Env{v: v, prefix: prefix}
}

func (e *Env) key(name string) string {
	k := strings.ToUpper(strings.TrimSpace(name))
	if e.prefix != "" {
		k = strings.ToUpper(e.prefix) + "_" + k
	}
	return k
}

func (e *Env) Resolve(_ context.Context, name string) Secret {
	if strings.TrimSpace(name) == "" {
		return Absent()
	}
	k := e.key(name)
	if s := Present(e.v.GetString(k)); s.IsPresent() {
		return s
	}
	return Present(e.v.GetString("secrets." + strings.ToLower(k)))
}
