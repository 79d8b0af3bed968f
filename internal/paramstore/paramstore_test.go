package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	values map[string]string
	err    error
	calls  int
	last   *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v}}, nil
}

func TestGetParameter_Decrypts(t *testing.T) {
	api := &fakeSSM{values: map[string]string{"/board/session": "s3cret"}}
	c, err := New(api)
	require.NoError(t, err)

	v, err := c.GetParameter(context.Background(), " /board/session ")
	require.NoError(t, err)
	require.Equal(t, "s3cret", v)
	require.True(t, *api.last.WithDecryption)
}

func TestGetParameter_Errors(t *testing.T) {
	c, err := New(&fakeSSM{})
	require.NoError(t, err)

	_, err = c.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")

	_, err = c.GetParameter(context.Background(), "/missing")
	require.ErrorIs(t, err, ErrMissingValue)

	c, err = New(&fakeSSM{err: errors.New("boom")})
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "/board/session")
	require.ErrorContains(t, err, "boom")
}

func TestResolve_SkipsLookupWithoutName(t *testing.T) {
	api := &fakeSSM{values: map[string]string{"/p": "from-ssm"}}
	c, err := New(api)
	require.NoError(t, err)

	v, err := c.Resolve(context.Background(), "", "from-config")
	require.NoError(t, err)
	require.Equal(t, "from-config", v)
	require.Zero(t, api.calls)

	v, err = c.Resolve(context.Background(), "/p", "from-config")
	require.NoError(t, err)
	require.Equal(t, "from-ssm", v)
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
