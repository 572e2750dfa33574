package source

import (
	"context"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rotblauer/tilestream/conceptual"
	"github.com/rotblauer/tilestream/content"
	"github.com/rotblauer/tilestream/params"
	"github.com/rotblauer/tilestream/types/tilenode"
	"io"
)

// S3GetObjectAPI is the slice of the S3 client an S3Source uses.
type S3GetObjectAPI interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
}

type S3Source struct {
	config  *params.S3SourceConfig
	api     S3GetObjectAPI
	decoder content.Decoder
}

// NewS3Source uses the default AWS session, configured from the environment.
func NewS3Source(config *params.S3SourceConfig, decoder content.Decoder) (*S3Source, error) {
	if config == nil {
		config = params.DefaultS3SourceConfig()
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(config.Region)})
	if err != nil {
		return nil, err
	}
	return NewS3SourceWithAPI(config, s3.New(sess), decoder)
}

func NewS3SourceWithAPI(config *params.S3SourceConfig, api S3GetObjectAPI, decoder content.Decoder) (*S3Source, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 source needs a bucket")
	}
	if decoder == nil {
		decoder = content.Decompress{}
	}
	return &S3Source{config: config, api: api, decoder: decoder}, nil
}

func (s *S3Source) Key(id conceptual.TileID) string {
	return s.config.Prefix + id.String() + s.config.Suffix
}

func (s *S3Source) FetchTile(ctx context.Context, id conceptual.TileID) (*tilenode.TileContent, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.Key(id)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, "NotFound":
				return nil, fmt.Errorf("%w: %s", tilenode.ErrTileNotFound, id)
			case request.CanceledErrorCode:
				return nil, fmt.Errorf("tile %s: %w", id, context.Canceled)
			}
		}
		return nil, fmt.Errorf("tile %s: %w", id, err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("tile %s: read object: %w", id, err)
	}
	return s.decoder.Decode(id, raw)
}
