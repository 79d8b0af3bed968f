package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_Precedence(t *testing.T) {
	cases := []struct {
		in   string
		want FrameKind
	}{
		{`{"ping":"ping","completeTaskId":"a","task":{},"message":"hi"}`, KindMessage},
		{`{"ping":"ping","completeTaskId":"a","task":{"message":"t"}}`, KindTask},
		{`{"ping":"ping","completeTaskId":"a"}`, KindCompleteTask},
		{`{"ping":"ping"}`, KindPing},
		{`{"name":"alice"}`, KindUnknown},
		{`{}`, KindUnknown},
	}
	for _, c := range cases {
		f, err := DecodeFrame([]byte(c.in))
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, f.Kind, c.in)
	}
}

func TestDecodeFrame_Fields(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"task":{"name":"alice","assignee":"bob","message":"ship it"}}`))
	require.NoError(t, err)
	assert.Equal(t, TaskRequest{Name: "alice", Assignee: "bob", Message: "ship it"}, f.Task)

	f, err = DecodeFrame([]byte(`{"message":42}`))
	require.NoError(t, err)
	assert.Equal(t, "42", f.Message)

	f, err = DecodeFrame([]byte(`{"completeTaskId":"2026-10-17T10:00:00.000Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "2026-10-17T10:00:00.000Z", f.CompleteTaskID)
}

func TestDecodeFrame_Name(t *testing.T) {
	for in, want := range map[string]string{
		`{"name":"alice"}`: "alice",
		`{"name":"null"}`:  "null",
		`{"name":null}`:    "",
		`{"name":false}`:   "",
		`{"name":0}`:       "",
		`{"name":7}`:       "7",
		`{}`:               "",
	} {
		f, err := DecodeFrame([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, f.Name, in)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, in := range []string{`not json`, `[1,2]`, `"text"`, `null`, `{"task":"oops"}`} {
		_, err := DecodeFrame([]byte(in))
		assert.Error(t, err, in)
	}
}
