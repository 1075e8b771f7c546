// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"imagefield/internal/variation"
)

// S3 stores files as objects in a single S3-compatible bucket. It is
// configured for path-style access (required by CEPH/Hetzner/MinIO).
type S3 struct {
	s3        *s3.Client
	bucket    string
	endpoint  string
	publicURL string // optional CDN/direct URL for public files
	policy    variation.NamePolicy
}

// NewS3 creates an S3 backend with static credentials and path-style
// addressing. Returns (nil, nil) if endpoint or credentials are empty,
// allowing the caller to decide whether storage is optional.
func NewS3(endpoint, region, accessKey, secretKey, bucket, publicURL string) (*S3, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, nil
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	// Strip trailing slash from endpoint for consistent URL building.
	endpoint = strings.TrimRight(endpoint, "/")

	client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: true,
	})

	return &S3{
		s3:        client,
		bucket:    bucket,
		endpoint:  endpoint,
		publicURL: strings.TrimRight(publicURL, "/"),
		policy:    variation.NumericSuffix{},
	}, nil
}

// Exists reports whether an object is stored under p.
func (c *S3) Exists(ctx context.Context, p string) (bool, error) {
	key, err := cleanPath(p)
	if err != nil {
		return false, err
	}
	_, err = c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head %s/%s: %w", c.bucket, key, err)
}

// Open streams the object stored under p.
func (c *S3) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	key, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	output, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("s3 download %s/%s: %w", c.bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("s3 download %s/%s: %w", c.bucket, key, err)
	}
	return output.Body, nil
}

// Save uploads r under p, or a disambiguated key when p is taken. The
// availability check is a separate request, so two concurrent writers can
// race for the same key; the last write wins.
func (c *S3) Save(ctx context.Context, p string, r io.Reader) (string, error) {
	key, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	key, err = variation.Available(key, c.policy, func(k string) (bool, error) {
		return c.Exists(ctx, k)
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("s3 read body %s: %w", key, err)
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s/%s: %w", c.bucket, key, err)
	}
	return key, nil
}

// Delete removes the object stored under p.
func (c *S3) Delete(ctx context.Context, p string) error {
	key, err := cleanPath(p)
	if err != nil {
		return err
	}
	_, err = c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// URL returns the public URL for an object. Uses the configured public URL
// if set, otherwise builds a path-style URL.
func (c *S3) URL(p string) string {
	if c.publicURL != "" {
		return c.publicURL + "/" + p
	}
	return c.endpoint + "/" + c.bucket + "/" + p
}

// Bucket returns the bucket name.
func (c *S3) Bucket() string {
	return c.bucket
}

// isNotFound recognises the missing-object errors of HeadObject (a bare
// 404 "NotFound") and GetObject ("NoSuchKey").
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
