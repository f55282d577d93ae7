package s3

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"

	"synxronquota/internal/service"
)

func TestListErrorMapsMissingBucketToNoQuota(t *testing.T) {
	err := fmt.Errorf("operation error S3: ListObjectsV2: %w", &types.NoSuchBucket{})

	assert.ErrorIs(t, listError("u1", err), service.ErrNoQuotaConfigured)
}

func TestListErrorKeepsTransientFailures(t *testing.T) {
	cause := errors.New("connection reset")

	err := listError("u1", cause)

	assert.NotErrorIs(t, err, service.ErrNoQuotaConfigured)
	assert.ErrorIs(t, err, cause)
}
