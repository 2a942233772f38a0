package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
	"github.com/sequentech/message-otp/internal/dynamo"
	"github.com/sequentech/message-otp/internal/verifier/app"
)

const (
	accountsEmailIndex       = "email-index"
	attributesNameValueIndex = "name-value-index"
	attributeNameValueField  = "name_value"
)

// accountDynamoDB is the subset of the DynamoDB client the account
// directory calls. *dynamodb.Client satisfies it.
type accountDynamoDB interface {
	GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamo.UpdateItemInput, optFns ...func(*dynamo.Options)) (*dynamo.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamo.QueryInput, optFns ...func(*dynamo.Options)) (*dynamo.QueryOutput, error)
}

// accountItem is the accounts table item. required_actions is a string set.
type accountItem struct {
	AccountID       string   `dynamodbav:"account_id"`
	Email           string   `dynamodbav:"email,omitempty"`
	EmailVerified   bool     `dynamodbav:"email_verified"`
	PasswordHash    string   `dynamodbav:"password_hash,omitempty"`
	RequiredActions []string `dynamodbav:"required_actions,stringset,omitempty"`
}

// attributeItem is one row of the account_attributes table. name_value
// backs the reuse-count index.
type attributeItem struct {
	AccountID string `dynamodbav:"account_id"`
	Name      string `dynamodbav:"name"`
	Value     string `dynamodbav:"value"`
	NameValue string `dynamodbav:"name_value"`
}

func attributeKey(name, value string) string {
	return name + "#" + value
}

var (
	_ app.AccountDirectory = (*DynamoAccountDirectory)(nil)
	_ app.PasswordVerifier = (*DynamoAccountDirectory)(nil)
)

// DynamoAccountDirectory stores accounts in one table and their free-form
// attributes in a second table keyed by (account_id, name).
type DynamoAccountDirectory struct {
	db              accountDynamoDB
	accountsTable   string
	attributesTable string
	hasher          *auth.PasswordHasher
}

// NewDynamoAccountDirectory creates an account directory over the two tables.
func NewDynamoAccountDirectory(db accountDynamoDB, accountsTable, attributesTable string, hasher *auth.PasswordHasher) *DynamoAccountDirectory {
	return &DynamoAccountDirectory{
		db:              db,
		accountsTable:   accountsTable,
		attributesTable: attributesTable,
		hasher:          hasher,
	}
}

// CountByEmail counts accounts through the email index.
func (d *DynamoAccountDirectory) CountByEmail(ctx context.Context, email string) (int, error) {
	expr, err := dynamo.NewExpressionBuilder().
		WithKeyCondition(dynamo.Key("email").Equal(dynamo.Value(email))).
		Build()
	if err != nil {
		return 0, fmt.Errorf("account directory: count by email: %w", err)
	}

	n, err := d.count(ctx, &dynamo.QueryInput{
		TableName:                 &d.accountsTable,
		IndexName:                 dynamo.String(accountsEmailIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    dynamo.SelectCount,
	})
	if err != nil {
		return 0, fmt.Errorf("account directory: count by email: %w", err)
	}
	return n, nil
}

// CountByAttribute counts accounts holding value under name. The email
// attribute is counted through the accounts table.
func (d *DynamoAccountDirectory) CountByAttribute(ctx context.Context, name, value string) (int, error) {
	if name == domain.EmailAttribute {
		return d.CountByEmail(ctx, value)
	}

	expr, err := dynamo.NewExpressionBuilder().
		WithKeyCondition(dynamo.Key(attributeNameValueField).Equal(dynamo.Value(attributeKey(name, value)))).
		Build()
	if err != nil {
		return 0, fmt.Errorf("account directory: count by attribute %q: %w", name, err)
	}

	n, err := d.count(ctx, &dynamo.QueryInput{
		TableName:                 &d.attributesTable,
		IndexName:                 dynamo.String(attributesNameValueIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    dynamo.SelectCount,
	})
	if err != nil {
		return 0, fmt.Errorf("account directory: count by attribute %q: %w", name, err)
	}
	return n, nil
}

// count sums Count over every page of a COUNT query.
func (d *DynamoAccountDirectory) count(ctx context.Context, in *dynamo.QueryInput) (int, error) {
	total := 0
	for {
		out, err := d.db.Query(ctx, in)
		if err != nil {
			return 0, errors.Join(err, domain.ErrUnavailable)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// GetAttribute returns "" for an unset attribute. A missing account is
// domain.ErrNotFound.
func (d *DynamoAccountDirectory) GetAttribute(ctx context.Context, accountID, name string) (string, error) {
	if name == domain.EmailAttribute {
		acct, err := d.getAccount(ctx, accountID)
		if err != nil {
			return "", fmt.Errorf("account directory: get email: %w", err)
		}
		return acct.Email, nil
	}

	out, err := d.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName: &d.attributesTable,
		Key: map[string]dynamo.AttributeValue{
			"account_id": &dynamo.AttributeValueMemberS{Value: accountID},
			"name":       &dynamo.AttributeValueMemberS{Value: name},
		},
		ConsistentRead: dynamo.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("account directory: get attribute %q: %w", name, errors.Join(err, domain.ErrUnavailable))
	}
	if out.Item == nil {
		return "", nil
	}

	var item attributeItem
	if err := dynamo.UnmarshalMap(out.Item, &item); err != nil {
		return "", fmt.Errorf("account directory: unmarshal attribute: %w", err)
	}
	return item.Value, nil
}

// SetAttribute upserts one attribute row. Setting the email attribute
// updates the account email and leaves its verified flag alone.
func (d *DynamoAccountDirectory) SetAttribute(ctx context.Context, accountID, name, value string) error {
	if name == domain.EmailAttribute {
		update := dynamo.Set(dynamo.Name("email"), dynamo.Value(value))
		if err := d.updateAccount(ctx, accountID, update); err != nil {
			return fmt.Errorf("account directory: set email attribute: %w", err)
		}
		return nil
	}

	av, err := dynamo.MarshalMap(attributeItem{
		AccountID: accountID,
		Name:      name,
		Value:     value,
		NameValue: attributeKey(name, value),
	})
	if err != nil {
		return fmt.Errorf("account directory: marshal attribute: %w", err)
	}

	if _, err := d.db.PutItem(ctx, &dynamo.PutItemInput{
		TableName: &d.attributesTable,
		Item:      av,
	}); err != nil {
		return fmt.Errorf("account directory: set attribute %q: %w", name, errors.Join(err, domain.ErrUnavailable))
	}
	return nil
}

// SetEmail writes the account email and its verified flag.
func (d *DynamoAccountDirectory) SetEmail(ctx context.Context, accountID, email string, verified bool) error {
	update := dynamo.Set(dynamo.Name("email"), dynamo.Value(email)).
		Set(dynamo.Name("email_verified"), dynamo.Value(verified))
	if err := d.updateAccount(ctx, accountID, update); err != nil {
		return fmt.Errorf("account directory: set email: %w", err)
	}
	return nil
}

// RemoveRequiredAction deletes action from the account's required set.
// Removing an absent action succeeds.
func (d *DynamoAccountDirectory) RemoveRequiredAction(ctx context.Context, accountID, action string) error {
	updateExpr := "DELETE required_actions :a"
	condExpr := "attribute_exists(account_id)"

	_, err := d.db.UpdateItem(ctx, &dynamo.UpdateItemInput{
		TableName: &d.accountsTable,
		Key: map[string]dynamo.AttributeValue{
			"account_id": &dynamo.AttributeValueMemberS{Value: accountID},
		},
		UpdateExpression:    &updateExpr,
		ConditionExpression: &condExpr,
		ExpressionAttributeValues: map[string]dynamo.AttributeValue{
			":a": &dynamo.AttributeValueMemberSS{Value: []string{action}},
		},
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return fmt.Errorf("account directory: remove required action: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("account directory: remove required action: %w", errors.Join(err, domain.ErrUnavailable))
	}
	return nil
}

// VerifyPassword compares password with the stored bcrypt hash. An account
// without a password never matches.
func (d *DynamoAccountDirectory) VerifyPassword(ctx context.Context, accountID string, password domain.SecretString) (bool, error) {
	acct, err := d.getAccount(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("account directory: verify password: %w", err)
	}
	if acct.PasswordHash == "" {
		return false, nil
	}
	return d.hasher.Matches(acct.PasswordHash, password)
}

func (d *DynamoAccountDirectory) getAccount(ctx context.Context, accountID string) (*accountItem, error) {
	out, err := d.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName: &d.accountsTable,
		Key: map[string]dynamo.AttributeValue{
			"account_id": &dynamo.AttributeValueMemberS{Value: accountID},
		},
		ConsistentRead: dynamo.Bool(true),
	})
	if err != nil {
		return nil, errors.Join(err, domain.ErrUnavailable)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}

	var item accountItem
	if err := dynamo.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &item, nil
}

// updateAccount applies update to an existing account only.
func (d *DynamoAccountDirectory) updateAccount(ctx context.Context, accountID string, update dynamo.UpdateBuilder) error {
	expr, err := dynamo.NewExpressionBuilder().
		WithUpdate(update).
		WithCondition(dynamo.AttributeExists(dynamo.Name("account_id"))).
		Build()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	_, err = d.db.UpdateItem(ctx, &dynamo.UpdateItemInput{
		TableName: &d.accountsTable,
		Key: map[string]dynamo.AttributeValue{
			"account_id": &dynamo.AttributeValueMemberS{Value: accountID},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return domain.ErrNotFound
		}
		return errors.Join(err, domain.ErrUnavailable)
	}
	return nil
}
