package s3

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/pkg/errors"
)

// fakeAPI keeps objects in memory and pages listings two keys at a time.
type fakeAPI struct {
	objects map[string][]byte
	lists   int
}

func newFake(objects map[string]string) *fakeAPI {
	f := &fakeAPI{objects: make(map[string][]byte)}
	for k, v := range objects {
		f.objects[k] = []byte(v)
	}
	return f
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.lists++
	prefix := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, aws.ToString(in.Bucket)+"/"))
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := start + 2
	out := &s3.ListObjectsV2Output{}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		end = len(keys)
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://logs/uipath/run.xes", "logs", "uipath/run.xes", false},
		{"s3://logs/bp/", "logs", "bp/", false},
		{"s3://logs", "logs", "", false},
		{"s3:///key", "", "", true},
		{"/tmp/run.xes", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestFetch(t *testing.T) {
	c := NewWithAPI(newFake(map[string]string{"logs/uipath/run.xes": "<log/>"}), Config{})
	dir := t.TempDir()

	got, err := c.Fetch(context.Background(), "s3://logs/uipath/run.xes", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run.xes"), got)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "<log/>", string(data))

	_, err = c.Fetch(context.Background(), "s3://logs/uipath/missing.xes", dir)
	assert.True(t, errors.IsCode(err, errors.CodeStorage))

	_, err = c.Fetch(context.Background(), "s3://logs/uipath/", dir)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
}

func TestFetchPrefixPaginates(t *testing.T) {
	fake := newFake(map[string]string{
		"logs/bp/session.csv":    "a",
		"logs/bp/log.csv":        "b",
		"logs/bp/process.csv":    "c",
		"logs/bp/readme.txt":     "d",
		"logs/other/session.csv": "e",
	})
	c := NewWithAPI(fake, Config{})
	dir := filepath.Join(t.TempDir(), "bp")

	_, err := c.FetchPrefix(context.Background(), "s3://logs/bp", dir, ".csv")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.lists)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"log.csv", "process.csv", "session.csv"}, names)
}

func TestUpload(t *testing.T) {
	fake := newFake(nil)
	c := NewWithAPI(fake, Config{})
	src := filepath.Join(t.TempDir(), "df_automation_rate.csv")
	require.NoError(t, os.WriteFile(src, []byte("x;y"), 0o644))

	uri, err := c.Upload(context.Background(), src, "s3://results/run-1/")
	require.NoError(t, err)
	assert.Equal(t, "s3://results/run-1/df_automation_rate.csv", uri)
	assert.Equal(t, "x;y", string(fake.objects["results/run-1/df_automation_rate.csv"]))

	_, err = c.Upload(context.Background(), filepath.Join(t.TempDir(), "nope"), "s3://results/x")
	assert.True(t, errors.IsCode(err, errors.CodeFileNotFound))
}
