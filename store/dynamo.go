package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"strata-waitlist/models"
)

const (
	emailIndex        = "email-index"
	referralLinkIndex = "referral-link-index"
	achievementsIndex = "user-index"
)

// DynamoStore is the managed-cloud flavor of the ledger store. The waitlist
// table is keyed by id with GSIs on email and referral_link; achievements live
// in a sibling table keyed by id with a GSI on user_id.
type DynamoStore struct {
	client            *dynamodb.Client
	tableName         string
	achievementsTable string
}

// OpenDynamo builds the client from the usual AWS environment. Static
// credentials and a custom endpoint (local DynamoDB) are honored when set.
func OpenDynamo(ctx context.Context) (*DynamoStore, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, os.Getenv("AWS_SECRET_ACCESS_KEY"), ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint := os.Getenv("DYNAMODB_ENDPOINT"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	tableName := os.Getenv("DYNAMODB_TABLE_NAME")
	if tableName == "" {
		tableName = "strata-waitlist"
	}

	return &DynamoStore{
		client:            client,
		tableName:         tableName,
		achievementsTable: tableName + "-achievements",
	}, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *DynamoStore) CreateEntry(ctx context.Context, entry *models.WaitlistEntry) error {
	// The email GSI cannot carry a unique constraint, so the email check is
	// a lookup followed by a conditional put on the id. Good enough for a
	// single-writer signup flow; the id condition still prevents clobbering.
	if _, err := s.GetByEmail(ctx, entry.Email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return unavailable(err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		// A failed condition here is an id collision, not a duplicate
		// signup; the email duplicate was handled by the lookup above.
		return unavailable(err)
	}
	return nil
}

func (s *DynamoStore) GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var entry models.WaitlistEntry
	if err := attributevalue.UnmarshalMap(out.Item, &entry); err != nil {
		return nil, unavailable(err)
	}
	return &entry, nil
}

func (s *DynamoStore) queryIndex(ctx context.Context, index, attr, value string) (*models.WaitlistEntry, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(fmt.Sprintf("%s = :v", attr)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	var entry models.WaitlistEntry
	if err := attributevalue.UnmarshalMap(out.Items[0], &entry); err != nil {
		return nil, unavailable(err)
	}
	return &entry, nil
}

func (s *DynamoStore) GetByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error) {
	return s.queryIndex(ctx, emailIndex, "email", email)
}

func (s *DynamoStore) GetByReferralLink(ctx context.Context, code string) (*models.WaitlistEntry, error) {
	return s.queryIndex(ctx, referralLinkIndex, "referral_link", code)
}

// buildUpdateExpression turns a change set into a SET expression with aliased
// attribute names, so column names never collide with reserved words.
func buildUpdateExpression(changes map[string]interface{}) (string, map[string]string, map[string]types.AttributeValue, error) {
	cols := make([]string, 0, len(changes))
	for col := range changes {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	names := make(map[string]string, len(cols))
	values := make(map[string]types.AttributeValue, len(cols))
	for _, col := range cols {
		av, err := attributevalue.Marshal(changes[col])
		if err != nil {
			return "", nil, nil, err
		}
		sets = append(sets, fmt.Sprintf("#%s = :%s", col, col))
		names["#"+col] = col
		values[":"+col] = av
	}
	return "SET " + strings.Join(sets, ", "), names, values, nil
}

func (s *DynamoStore) UpdateEntry(ctx context.Context, id string, changes map[string]interface{}) (*models.WaitlistEntry, error) {
	if err := CheckMutable(changes); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return s.GetByID(ctx, id)
	}

	expr, names, values, err := buildUpdateExpression(changes)
	if err != nil {
		return nil, unavailable(err)
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	var entry models.WaitlistEntry
	if err := attributevalue.UnmarshalMap(out.Attributes, &entry); err != nil {
		return nil, unavailable(err)
	}
	return &entry, nil
}

// CreditReferral uses ADD so the increments are evaluated by DynamoDB itself;
// concurrent referrals against the same code never lose an update.
func (s *DynamoStore) CreditReferral(ctx context.Context, referrerID string, points int64, at time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: referrerID},
		},
		UpdateExpression: aws.String("SET last_referral_at = :at ADD referral_count :one, points :pts"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at":  &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
			":one": &types.AttributeValueMemberN{Value: "1"},
			":pts": &types.AttributeValueMemberN{Value: strconv.FormatInt(points, 10)},
		},
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return unavailable(err)
	}
	return nil
}

func (s *DynamoStore) AddPoints(ctx context.Context, id string, points int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String("ADD points :pts"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pts": &types.AttributeValueMemberN{Value: strconv.FormatInt(points, 10)},
		},
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return unavailable(err)
	}
	return nil
}

func (s *DynamoStore) SetTierLevel(ctx context.Context, id string, tier int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String("SET tier_level = :tier"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tier": &types.AttributeValueMemberN{Value: strconv.Itoa(tier)},
		},
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return unavailable(err)
	}
	return nil
}

func (s *DynamoStore) ListEntries(ctx context.Context) ([]models.WaitlistEntry, error) {
	entries := []models.WaitlistEntry{}
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		var batch []models.WaitlistEntry
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, unavailable(err)
		}
		entries = append(entries, batch...)
	}
	return entries, nil
}

// Leaderboard scans and orders in memory. A waitlist table is small; a scan
// keeps the full points/referral_count/created_at ordering contract, which a
// single GSI sort key cannot express.
func (s *DynamoStore) Leaderboard(ctx context.Context, limit int) ([]models.WaitlistEntry, error) {
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	sortLeaderboard(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func sortLeaderboard(entries []models.WaitlistEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		if entries[i].ReferralCount != entries[j].ReferralCount {
			return entries[i].ReferralCount > entries[j].ReferralCount
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// ListRewards serves the static rewards track; on the cloud backend the track
// is configuration, not table data.
func (s *DynamoStore) ListRewards(ctx context.Context) ([]models.ReferralReward, error) {
	return models.DefaultRewards(), nil
}

func (s *DynamoStore) CreateAchievement(ctx context.Context, a *models.UserAchievement) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return unavailable(err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.achievementsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *DynamoStore) ListAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.achievementsTable),
		IndexName:              aws.String(achievementsIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, unavailable(err)
	}
	achievements := []models.UserAchievement{}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &achievements); err != nil {
		return nil, unavailable(err)
	}
	return achievements, nil
}

func (s *DynamoStore) Close() error {
	return nil
}
