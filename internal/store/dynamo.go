package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"github.com/tutorlink/tutorlink/internal/models"
)

// Dynamo implements Store on a single DynamoDB table with the PK/SK layout
// used by the rest of the platform. Expiry relies on the table's TTL
// attribute plus the explicit expires_at check on reads, since DynamoDB TTL
// deletion can lag by minutes.
type Dynamo struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewDynamo(client *dynamodb.Client, tableName string, logger *logrus.Logger) *Dynamo {
	return &Dynamo{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func verificationPK(phone string) string {
	return fmt.Sprintf("VERIFY#%s", phone)
}

func verificationSK(purpose models.Purpose) string {
	return fmt.Sprintf("PURPOSE#%s", purpose)
}

func tokenPK(token string) string {
	return fmt.Sprintf("CAPTOKEN#%s", token)
}

func (s *Dynamo) PutVerification(ctx context.Context, rec *models.VerificationRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal verification record: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: verificationPK(rec.PhoneNumber)}
	item["SK"] = &types.AttributeValueMemberS{Value: verificationSK(rec.Purpose)}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt.Unix(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to store verification record in DynamoDB")
		return fmt.Errorf("failed to store verification record: %w", err)
	}

	return nil
}

func (s *Dynamo) GetVerification(ctx context.Context, phone string, purpose models.Purpose) (*models.VerificationRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: verificationPK(phone)},
			"SK": &types.AttributeValueMemberS{Value: verificationSK(purpose)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get verification record: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var rec models.VerificationRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verification record: %w", err)
	}

	return &rec, nil
}

func (s *Dynamo) IncrementVerificationAttempts(ctx context.Context, phone string, purpose models.Purpose) (int, error) {
	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: verificationPK(phone)},
			"SK": &types.AttributeValueMemberS{Value: verificationSK(purpose)},
		},
		UpdateExpression:    aws.String("ADD attempts :one"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}

	attr, ok := result.Attributes["attempts"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("unexpected attempts attribute in update result")
	}
	attempts, err := strconv.Atoi(attr.Value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse attempts: %w", err)
	}

	return attempts, nil
}

func (s *Dynamo) ConsumeVerification(ctx context.Context, phone string, purpose models.Purpose) (bool, error) {
	return s.conditionalUse(ctx, verificationPK(phone), verificationSK(purpose))
}

func (s *Dynamo) PutToken(ctx context.Context, tok *models.CapabilityToken) error {
	item, err := attributevalue.MarshalMap(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal capability token: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: tokenPK(tok.Token)}
	item["SK"] = &types.AttributeValueMemberS{Value: "METADATA"}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(tok.ExpiresAt.Unix(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to store capability token in DynamoDB")
		return fmt.Errorf("failed to store capability token: %w", err)
	}

	return nil
}

func (s *Dynamo) GetToken(ctx context.Context, token string) (*models.CapabilityToken, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tokenPK(token)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get capability token: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var tok models.CapabilityToken
	if err := attributevalue.UnmarshalMap(result.Item, &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capability token: %w", err)
	}

	return &tok, nil
}

func (s *Dynamo) ConsumeToken(ctx context.Context, token string) (bool, error) {
	return s.conditionalUse(ctx, tokenPK(token), "METADATA")
}

func (s *Dynamo) Close() error {
	return nil
}

// conditionalUse is the authoritative single-use transition: the condition
// expression makes DynamoDB reject every caller except the one that
// observed is_used=false, so a race has exactly one winner.
func (s *Dynamo) conditionalUse(ctx context.Context, pk, sk string) (bool, error) {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression:    aws.String("SET is_used = :t"),
		ConditionExpression: aws.String("attribute_exists(PK) AND is_used = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to consume record: %w", err)
	}

	return true, nil
}
