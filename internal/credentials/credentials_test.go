package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSecret_PresentAndAbsent(t *testing.T) {
	v, ok := Present("  key-123 ").Value()
	require.True(t, ok)
	require.Equal(t, "key-123", v)

	_, ok = Present("   ").Value()
	require.False(t, ok, "blank keys are absent")

	_, ok = Absent().Value()
	require.False(t, ok)

	require.Equal(t, "<redacted>", Present("x").String())
	require.Equal(t, "<absent>", Absent().String())
}

func TestStaticAndChain(t *testing.T) {
	first := Static{"QUOTEHUB_API_KEY": ""}
	second := Static{"QUOTEHUB_API_KEY": "from-second"}

	s := Chain{first, nil, second}.Resolve(t.Context(), "QUOTEHUB_API_KEY")
	v, ok := s.Value()
	require.True(t, ok)
	require.Equal(t, "from-second", v)

	require.False(t, Chain{first}.Resolve(t.Context(), "missing").IsPresent())
}

func TestEnv_ResolvesWithPrefix(t *testing.T) {
	t.Setenv("PORTAL_HMOMARKET_API_KEY", "hmo-key")

	env := NewEnv("portal")
	v, ok := env.Resolve(t.Context(), "hmomarket_api_key").Value()
	require.True(t, ok)
	require.Equal(t, "hmo-key", v)

	require.False(t, env.Resolve(t.Context(), "not_set_anywhere").IsPresent())
	require.False(t, env.Resolve(t.Context(), " ").IsPresent())
}

func TestCached_MemoizesPresentAndExpiresAbsent(t *testing.T) {
	calls := 0
	value := ""
	inner := ResolverFunc(func(_ context.Context, _ string) Secret {
		calls++
		return Present(value)
	})
	c := NewCached(inner, time.Minute, 10*time.Second, zerolog.Nop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	// Act: absent is cached for the negative TTL only
	require.False(t, c.Resolve(t.Context(), "k").IsPresent())
	require.False(t, c.Resolve(t.Context(), "k").IsPresent())
	require.Equal(t, 1, calls)

	value = "late-key"
	now = now.Add(11 * time.Second)
	require.True(t, c.Resolve(t.Context(), "k").IsPresent())
	require.Equal(t, 2, calls)

	// Assert: present values live for the full TTL
	now = now.Add(30 * time.Second)
	require.True(t, c.Resolve(t.Context(), "k").IsPresent())
	require.Equal(t, 2, calls)

	c.Invalidate("k")
	c.Resolve(t.Context(), "k")
	require.Equal(t, 3, calls)
}

func TestMask(t *testing.T) {
	require.Equal(t, "***", Mask("abcd"))
	require.Equal(t, "..._KEY", Mask("QUOTEHUB_API_KEY"))
}

func TestAWSSecretsManager_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output *secretsmanager.GetSecretValueOutput
		err    error
		want   string
		ok     bool
	}{
		{name: "plain string", output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("plain-key")}, want: "plain-key", ok: true},
		{name: "json api_key", output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"api_key":"json-key"}`)}, want: "json-key", ok: true},
		{name: "json value", output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"value":"v-key"}`)}, want: "v-key", ok: true},
		{name: "json without key", output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"other":"x"}`)}},
		{name: "binary only", output: &secretsmanager.GetSecretValueOutput{SecretBinary: []byte("x")}},
		{name: "not found", err: errors.New("ResourceNotFoundException")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: stub the Secrets Manager client
			ctrl := gomock.NewController(t)
			api := NewMockSecretsAPI(ctrl)
			api.EXPECT().
				GetSecretValue(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
					require.Equal(t, "portal/QUOTEHUB_API_KEY", aws.ToString(in.SecretId))
					return tt.output, tt.err
				}).
				Times(1)

			// Act
			s := NewAWSSecretsManagerWithClient(api, "portal/", zerolog.Nop()).Resolve(t.Context(), "QUOTEHUB_API_KEY")

			// Assert
			v, ok := s.Value()
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, v)
		})
	}
}

func TestAWSSecretsManager_EmptyNameSkipsCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := NewMockSecretsAPI(ctrl)
	api.EXPECT().GetSecretValue(gomock.Any(), gomock.Any()).Times(0)

	require.False(t, NewAWSSecretsManagerWithClient(api, "", zerolog.Nop()).Resolve(t.Context(), "").IsPresent())
}
