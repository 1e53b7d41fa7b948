package kms

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
)

// AWSProvider wraps DEKs with a customer master key in AWS KMS. The keyID
// passed to Wrap/Unwrap is recorded as an encryption context entry so a
// wrapped key for one tenant cannot be unwrapped for another.
type AWSProvider struct {
	client *awskms.Client
	keyARN string
}

// NewAWSProvider builds a provider against the CMK identified by keyARN,
// loading credentials and region from the default AWS config chain.
func NewAWSProvider(ctx context.Context, keyARN string) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSProvider{client: awskms.NewFromConfig(cfg), keyARN: keyARN}, nil
}

func (p *AWSProvider) WrapDEK(ctx context.Context, keyID string, plaintextDEK []byte) ([]byte, error) {
	out, err := p.client.Encrypt(ctx, &awskms.EncryptInput{
		KeyId:             &p.keyARN,
		Plaintext:         plaintextDEK,
		EncryptionContext: map[string]string{"key_id": keyID},
	})
	if err != nil {
		return nil, fmt.Errorf("kms encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (p *AWSProvider) UnwrapDEK(ctx context.Context, keyID string, wrapped []byte) ([]byte, error) {
	out, err := p.client.Decrypt(ctx, &awskms.DecryptInput{
		KeyId:             &p.keyARN,
		CiphertextBlob:    wrapped,
		EncryptionContext: map[string]string{"key_id": keyID},
	})
	if err != nil {
		return nil, fmt.Errorf("kms decrypt: %w", err)
	}
	return out.Plaintext, nil
}
