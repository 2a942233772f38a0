package adapter

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
)

type secretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type parameterClient interface {
	GetParameter(ctx context.Context, params *awsssm.GetParameterInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *awsssm.GetParametersByPathInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParametersByPathOutput, error)
}

var _ auth.KeyStore = (*AWSKeyStore)(nil)

// AWSKeyStoreConfig names where ticket keys live.
type AWSKeyStoreConfig struct {
	// CurrentKeyIDParam is the SSM parameter holding the active key ID.
	CurrentKeyIDParam string
	// PublicKeysPath is the SSM path; each child parameter is a PEM public
	// key named by its key ID.
	PublicKeysPath string
	// SigningKeyPrefix + key ID names the Secrets Manager secret holding
	// the PEM private key.
	SigningKeyPrefix string
	CacheTTL         time.Duration
	// UnknownKidCooldown rate-limits refreshes triggered by unknown key IDs.
	UnknownKidCooldown time.Duration
}

// DefaultAWSKeyStoreConfig returns the standard parameter layout.
func DefaultAWSKeyStoreConfig() AWSKeyStoreConfig {
	return AWSKeyStoreConfig{
		CurrentKeyIDParam:  "/verifier/tickets/current-key-id",
		PublicKeysPath:     "/verifier/tickets/public-keys/",
		SigningKeyPrefix:   "verifier/tickets/signing-key/",
		CacheTTL:           5 * time.Minute,
		UnknownKidCooldown: 30 * time.Second,
	}
}

// AWSKeyStore signs flow tickets with a private key from Secrets Manager
// and verifies them against public keys from SSM. The signing key is
// loaded once; public keys are cached and refreshed on read.
type AWSKeyStore struct {
	ssm   parameterClient
	cfg   AWSKeyStoreConfig
	clock domain.Clock

	mu             sync.RWMutex
	signingKey     *rsa.PrivateKey
	keyID          string
	publicKeys     map[string]*rsa.PublicKey
	loadedAt       time.Time
	lastKidRefresh time.Time
}

// NewAWSKeyStore loads the signing key and all public keys. The service
// must not start without them, so any failure is returned.
func NewAWSKeyStore(ctx context.Context, sm secretsClient, ssm parameterClient, cfg AWSKeyStoreConfig, clock domain.Clock) (*AWSKeyStore, error) {
	param, err := ssm.GetParameter(ctx, &awsssm.GetParameterInput{Name: aws.String(cfg.CurrentKeyIDParam)})
	if err != nil {
		return nil, fmt.Errorf("keystore: get current key id: %w", err)
	}
	if param.Parameter == nil || aws.ToString(param.Parameter.Value) == "" {
		return nil, fmt.Errorf("keystore: parameter %s is empty: %w", cfg.CurrentKeyIDParam, domain.ErrConfigRequired)
	}
	keyID := aws.ToString(param.Parameter.Value)

	secretID := cfg.SigningKeyPrefix + keyID
	secret, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return nil, fmt.Errorf("keystore: get signing key %q: %w", secretID, err)
	}
	if secret.SecretString == nil {
		return nil, fmt.Errorf("keystore: secret %q has no string value: %w", secretID, domain.ErrConfigRequired)
	}
	signingKey, err := parseRSAPrivateKey(*secret.SecretString)
	if err != nil {
		return nil, fmt.Errorf("keystore: signing key %q: %w", keyID, err)
	}

	ks := &AWSKeyStore{
		ssm:        ssm,
		cfg:        cfg,
		clock:      clock,
		signingKey: signingKey,
		keyID:      keyID,
	}
	if err := ks.refresh(ctx, false); err != nil {
		return nil, err
	}
	return ks, nil
}

func (ks *AWSKeyStore) SigningKey() (*rsa.PrivateKey, string, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.signingKey, ks.keyID, nil
}

// PublicKey returns the key for kid. A stale cache is refreshed first; an
// unknown kid triggers one refresh per cooldown window. KeyStore carries no
// context, so refreshes run under their own timeout.
func (ks *AWSKeyStore) PublicKey(kid string) (*rsa.PublicKey, error) {
	now := ks.clock.Now()

	ks.mu.RLock()
	pk, ok := ks.publicKeys[kid]
	stale := now.Sub(ks.loadedAt) > ks.cfg.CacheTTL
	cooling := now.Sub(ks.lastKidRefresh) <= ks.cfg.UnknownKidCooldown
	ks.mu.RUnlock()

	if ok && !stale {
		return pk, nil
	}
	if !stale && cooling {
		return nil, fmt.Errorf("unknown key ID %q", kid)
	}

	ctx, cancel := context.WithTimeout(context.Background(), domain.DynamoDBTimeout)
	defer cancel()
	if err := ks.refresh(ctx, !ok); err != nil {
		return nil, err
	}

	ks.mu.RLock()
	pk, ok = ks.publicKeys[kid]
	ks.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown key ID %q", kid)
	}
	return pk, nil
}

// refresh reloads every public key. unknownKid starts a new cooldown window.
func (ks *AWSKeyStore) refresh(ctx context.Context, unknownKid bool) error {
	keys := make(map[string]*rsa.PublicKey)
	in := &awsssm.GetParametersByPathInput{
		Path:      aws.String(ks.cfg.PublicKeysPath),
		Recursive: aws.Bool(true),
	}
	for {
		out, err := ks.ssm.GetParametersByPath(ctx, in)
		if err != nil {
			return fmt.Errorf("keystore: list public keys: %w", errors.Join(err, domain.ErrUnavailable))
		}
		for _, p := range out.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			kid := strings.TrimPrefix(*p.Name, ks.cfg.PublicKeysPath)
			pk, err := parseRSAPublicKey(*p.Value)
			if err != nil {
				return fmt.Errorf("keystore: public key %q: %w", kid, err)
			}
			keys[kid] = pk
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}

	now := ks.clock.Now()
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.publicKeys = keys
	ks.loadedAt = now
	if unknownKid {
		ks.lastKidRefresh = now
	}
	return nil
}

// parseRSAPrivateKey accepts PKCS#1 and PKCS#8 PEM.
func parseRSAPrivateKey(data string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.New("no PEM block in private key")
	}
	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS#8 key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", key)
	}
	return rsaKey, nil
}

func parseRSAPublicKey(data string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.New("no PEM block in public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", key)
	}
	return rsaKey, nil
}
