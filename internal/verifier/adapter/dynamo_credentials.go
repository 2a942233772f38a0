package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/dynamo"
	"github.com/sequentech/message-otp/internal/verifier/app"
)

// credentialDynamoDB is the subset of the DynamoDB client the credential
// store calls.
type credentialDynamoDB interface {
	GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamo.DeleteItemInput, optFns ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error)
}

// credentialItem is the credentials table item, keyed by (account_id, type).
type credentialItem struct {
	AccountID    string `dynamodbav:"account_id"`
	Type         string `dynamodbav:"type"`
	CredentialID string `dynamodbav:"credential_id"`
	IsSetup      bool   `dynamodbav:"is_setup"`
	CreatedAt    string `dynamodbav:"created_at"`
}

var _ app.CredentialStore = (*DynamoCredentialStore)(nil)

// DynamoCredentialStore keeps at most one credential per account and type.
type DynamoCredentialStore struct {
	db        credentialDynamoDB
	tableName string
}

// NewDynamoCredentialStore creates a credential store over tableName.
func NewDynamoCredentialStore(db credentialDynamoDB, tableName string) *DynamoCredentialStore {
	return &DynamoCredentialStore{db: db, tableName: tableName}
}

// Create writes rec unless the account already has a credential of the
// type, in which case the existing one is kept and Create succeeds.
func (s *DynamoCredentialStore) Create(ctx context.Context, rec domain.CredentialRecord) error {
	av, err := dynamo.MarshalMap(credentialItem{
		AccountID:    rec.AccountID,
		Type:         rec.Type,
		CredentialID: rec.ID.String(),
		IsSetup:      rec.IsSetup,
		CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("credential store: marshal item: %w", err)
	}

	condExpr := "attribute_not_exists(account_id)"
	_, err = s.db.PutItem(ctx, &dynamo.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: &condExpr,
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil
		}
		return fmt.Errorf("credential store: create: %w", errors.Join(err, domain.ErrUnavailable))
	}
	return nil
}

// ExistsByType reports whether the account has a credential of credType.
func (s *DynamoCredentialStore) ExistsByType(ctx context.Context, accountID, credType string) (bool, error) {
	out, err := s.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName:            &s.tableName,
		Key:                  credentialKey(accountID, credType),
		ConsistentRead:       dynamo.Bool(true),
		ProjectionExpression: dynamo.String("account_id"),
	})
	if err != nil {
		return false, fmt.Errorf("credential store: exists: %w", errors.Join(err, domain.ErrUnavailable))
	}
	return out.Item != nil, nil
}

// DeleteByType removes the account's credential of credType and returns
// how many were removed.
func (s *DynamoCredentialStore) DeleteByType(ctx context.Context, accountID, credType string) (int, error) {
	out, err := s.db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          credentialKey(accountID, credType),
		ReturnValues: dynamo.ReturnValueAllOld,
	})
	if err != nil {
		return 0, fmt.Errorf("credential store: delete: %w", errors.Join(err, domain.ErrUnavailable))
	}
	if len(out.Attributes) == 0 {
		return 0, nil
	}
	return 1, nil
}

func credentialKey(accountID, credType string) map[string]dynamo.AttributeValue {
	return map[string]dynamo.AttributeValue{
		"account_id": &dynamo.AttributeValueMemberS{Value: accountID},
		"type":       &dynamo.AttributeValueMemberS{Value: credType},
	}
}
