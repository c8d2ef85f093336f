package storage

import (
	"context"
	"strings"
	"testing"

	"crowdfund/pkg/types"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts     []*s3.PutObjectInput
	deletes  []*s3.DeleteObjectInput
	existing map[string]bool
	created  []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.existing[*in.Bucket] {
		return nil, &s3types.BucketAlreadyOwnedByYou{}
	}
	f.created = append(f.created, *in.Bucket)
	return &s3.CreateBucketOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + *in.Bucket + "/" + *in.Key + "?X-Amz-Signature=abc"}, nil
}

var testNames = map[Bucket]string{
	BucketProjectImages:     "cf-project-images",
	BucketProfilePictures:   "cf-profile-pictures",
	BucketMilestoneEvidence: "cf-milestone-evidence",
}

func mustStorage(t *testing.T, client *fakeS3, cfg Config) *S3Storage {
	t.Helper()
	if cfg.Names == nil {
		cfg.Names = testNames
	}
	s, err := NewS3Storage(client, fakePresigner{}, cfg)
	require.NoError(t, err)
	return s
}

func TestNewS3StorageRequiresEveryBucket(t *testing.T) {
	_, err := NewS3Storage(&fakeS3{}, nil, Config{Names: map[Bucket]string{BucketProjectImages: "x"}})
	require.Error(t, err)
}

func TestPolicyCheck(t *testing.T) {
	tests := []struct {
		name   string
		bucket Bucket
		file   string
		size   int64
		code   types.ErrorCode
	}{
		{name: "image within limit", bucket: BucketProjectImages, file: "cover.PNG", size: 2 * megabyte},
		{name: "image too large", bucket: BucketProjectImages, file: "cover.png", size: 10*megabyte + 1, code: types.CodeFileTooLarge},
		{name: "gif not allowed for avatars", bucket: BucketProfilePictures, file: "me.gif", size: 1024, code: types.CodeInvalidFileType},
		{name: "avatar too large", bucket: BucketProfilePictures, file: "me.jpg", size: 6 * megabyte, code: types.CodeFileTooLarge},
		{name: "pdf evidence", bucket: BucketMilestoneEvidence, file: "report.pdf", size: 25 * megabyte},
		{name: "video evidence", bucket: BucketMilestoneEvidence, file: "demo.mov", size: 30 * megabyte},
		{name: "executable evidence", bucket: BucketMilestoneEvidence, file: "setup.exe", size: 1024, code: types.CodeInvalidFileType},
		{name: "no extension", bucket: BucketProjectImages, file: "cover", size: 1024, code: types.CodeInvalidFileType},
		{name: "empty file", bucket: BucketProjectImages, file: "cover.png", size: 0, code: types.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, ok := PolicyFor(tt.bucket)
			require.True(t, ok)

			_, err := policy.Check(tt.file, tt.size)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, types.CodeOf(err))
		})
	}
}

func TestUpload(t *testing.T) {
	client := &fakeS3{}
	s := mustStorage(t, client, Config{})

	obj, err := s.Upload(context.Background(), BucketProjectImages, "user-1", "Cover.JPG", 1024, strings.NewReader("data"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(obj.Key, "user-1/"))
	assert.True(t, strings.HasSuffix(obj.Key, ".jpg"))
	assert.Equal(t, "image/jpeg", obj.ContentType)

	require.Len(t, client.puts, 1)
	assert.Equal(t, "cf-project-images", *client.puts[0].Bucket)
	assert.Equal(t, obj.Key, *client.puts[0].Key)

	_, err = s.Upload(context.Background(), BucketProjectImages, "user-1", "virus.exe", 1024, strings.NewReader("data"))
	assert.Equal(t, types.CodeInvalidFileType, types.CodeOf(err))
	assert.Len(t, client.puts, 1)
}

func TestDelete(t *testing.T) {
	client := &fakeS3{}
	s := mustStorage(t, client, Config{})

	require.NoError(t, s.Delete(context.Background(), BucketMilestoneEvidence, "user-1/a.pdf"))
	require.Len(t, client.deletes, 1)
	assert.Equal(t, "cf-milestone-evidence", *client.deletes[0].Bucket)
}

func TestURL(t *testing.T) {
	ctx := context.Background()

	public := mustStorage(t, &fakeS3{}, Config{PublicBaseURL: "https://cdn.example.com/"})
	url, err := public.URL(ctx, BucketProfilePictures, "user-1/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/cf-profile-pictures/user-1/a.png", url)

	signed := mustStorage(t, &fakeS3{}, Config{})
	url, err = signed.URL(ctx, BucketProfilePictures, "user-1/a.png")
	require.NoError(t, err)
	assert.Contains(t, url, "X-Amz-Signature")
}

func TestProvisionSkipsExistingBuckets(t *testing.T) {
	logger, hook := test.NewNullLogger()
	client := &fakeS3{existing: map[string]bool{"cf-profile-pictures": true}}
	s := mustStorage(t, client, Config{Region: "eu-west-1"})

	created, err := s.Provision(context.Background(), logger)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.ElementsMatch(t, []string{"cf-project-images", "cf-milestone-evidence"}, client.created)
	assert.NotEmpty(t, hook.AllEntries())

	// running setup again is harmless
	client.existing = map[string]bool{"cf-project-images": true, "cf-profile-pictures": true, "cf-milestone-evidence": true}
	created, err = s.Provision(context.Background(), logger)
	require.NoError(t, err)
	assert.Zero(t, created)
}
