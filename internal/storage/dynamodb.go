package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI interface for mocking
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBTables names the four tables. Customers are keyed by phone so the
// table itself enforces one customer per phone number.
type DynamoDBTables struct {
	Jobs      string
	Customers string
	Plumbers  string
	Payments  string
}

// Secondary indexes on the jobs and payments tables
const (
	jobStatusIndex     = "status-index"
	jobCustomerIndex   = "customer-index"
	jobPlumberIndex    = "plumber-index"
	paymentJobIndex    = "job-index"
	conditionNotExists = "attribute_not_exists(id)"
	conditionExists    = "attribute_exists(id)"
)

type DynamoDBStorage struct {
	client DynamoDBAPI
	tables DynamoDBTables
}

func NewDynamoDBStorage(client DynamoDBAPI, tables DynamoDBTables) *DynamoDBStorage {
	return &DynamoDBStorage{
		client: client,
		tables: tables,
	}
}

// NewDynamoDBConfig loads AWS config for region. When endpoint is set (DynamoDB
// Local) static credentials are used, since the local emulator ignores them but
// the SDK still requires some.
func NewDynamoDBConfig(ctx context.Context, region, endpoint string) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if endpoint != "" {
		creds := credentials.NewStaticCredentialsProvider("local", "local", "")
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == dynamodb.ServiceID {
				return aws.Endpoint{URL: endpoint, SigningRegion: region, HostnameImmutable: true}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts,
			config.WithCredentialsProvider(creds),
			config.WithEndpointResolverWithOptions(resolver),
		)
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

func (d *DynamoDBStorage) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tables.Customers),
		Key: map[string]types.AttributeValue{
			"phone": &types.AttributeValueMemberS{Value: phone},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("customer with phone %s: %w", phone, ErrNotFound)
	}

	var customer Customer
	if err := attributevalue.UnmarshalMap(result.Item, &customer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal customer: %w", err)
	}

	return &customer, nil
}

func (d *DynamoDBStorage) CreateCustomer(ctx context.Context, customer *Customer) error {
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}

	item, err := attributevalue.MarshalMap(customer)
	if err != nil {
		return fmt.Errorf("failed to marshal customer: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tables.Customers),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(phone)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("customer with phone %s: %w", customer.Phone, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to put customer: %w", err)
	}

	return nil
}

func (d *DynamoDBStorage) CreateJob(ctx context.Context, job *Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt

	return d.putItem(ctx, d.tables.Jobs, "job", job.ID, job, conditionNotExists)
}

func (d *DynamoDBStorage) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := d.getItem(ctx, d.tables.Jobs, "job", jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (d *DynamoDBStorage) UpdateJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	return d.putItem(ctx, d.tables.Jobs, "job", job.ID, job, conditionExists)
}

func (d *DynamoDBStorage) GetJobsByStatus(ctx context.Context, status string) ([]*Job, error) {
	return d.queryJobs(ctx, jobStatusIndex, "#status = :value", map[string]string{"#status": "status"}, status)
}

func (d *DynamoDBStorage) GetJobsByCustomer(ctx context.Context, customerID string) ([]*Job, error) {
	return d.queryJobs(ctx, jobCustomerIndex, "customer_id = :value", nil, customerID)
}

func (d *DynamoDBStorage) GetJobsByPlumber(ctx context.Context, plumberID string) ([]*Job, error) {
	return d.queryJobs(ctx, jobPlumberIndex, "plumber_id = :value", nil, plumberID)
}

func (d *DynamoDBStorage) GetAllJobs(ctx context.Context) ([]*Job, error) {
	items, err := d.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(d.tables.Jobs)})
	if err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return unmarshalJobs(items)
}

func (d *DynamoDBStorage) queryJobs(ctx context.Context, index, keyCondition string, names map[string]string, value string) ([]*Job, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tables.Jobs),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(keyCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: value},
		},
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	var items []map[string]types.AttributeValue
	for {
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query jobs by %s: %w", index, err)
		}
		items = append(items, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return unmarshalJobs(items)
}

func (d *DynamoDBStorage) CreatePlumber(ctx context.Context, plumber *Plumber) error {
	now := time.Now()
	if plumber.CreatedAt.IsZero() {
		plumber.CreatedAt = now
	}
	plumber.UpdatedAt = now

	return d.putItem(ctx, d.tables.Plumbers, "plumber", plumber.ID, plumber, conditionNotExists)
}

func (d *DynamoDBStorage) GetPlumber(ctx context.Context, plumberID string) (*Plumber, error) {
	var plumber Plumber
	if err := d.getItem(ctx, d.tables.Plumbers, "plumber", plumberID, &plumber); err != nil {
		return nil, err
	}
	return &plumber, nil
}

func (d *DynamoDBStorage) UpdatePlumber(ctx context.Context, plumber *Plumber) error {
	plumber.UpdatedAt = time.Now()
	return d.putItem(ctx, d.tables.Plumbers, "plumber", plumber.ID, plumber, conditionExists)
}

func (d *DynamoDBStorage) ListPlumbers(ctx context.Context) ([]*Plumber, error) {
	return d.scanPlumbers(ctx, &dynamodb.ScanInput{TableName: aws.String(d.tables.Plumbers)})
}

func (d *DynamoDBStorage) ListAvailablePlumbers(ctx context.Context) ([]*Plumber, error) {
	return d.scanPlumbers(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(d.tables.Plumbers),
		FilterExpression: aws.String("available = :available"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":available": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
}

// scanPlumbers returns plumbers in registration order
func (d *DynamoDBStorage) scanPlumbers(ctx context.Context, input *dynamodb.ScanInput) ([]*Plumber, error) {
	items, err := d.scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan plumbers: %w", err)
	}

	var plumbers []*Plumber
	for _, item := range items {
		var plumber Plumber
		if err := attributevalue.UnmarshalMap(item, &plumber); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plumber: %w", err)
		}
		plumbers = append(plumbers, &plumber)
	}

	sort.SliceStable(plumbers, func(i, j int) bool {
		if !plumbers[i].CreatedAt.Equal(plumbers[j].CreatedAt) {
			return plumbers[i].CreatedAt.Before(plumbers[j].CreatedAt)
		}
		return plumbers[i].ID < plumbers[j].ID
	})
	return plumbers, nil
}

// ClaimPlumber uses a conditional update so two concurrent matches can never
// both take the same plumber.
func (d *DynamoDBStorage) ClaimPlumber(ctx context.Context, plumberID, jobID string) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tables.Plumbers),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: plumberID},
		},
		UpdateExpression:    aws.String("SET available = :false, current_job_id = :job, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id) AND available = :true"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":job":   &types.AttributeValueMemberS{Value: jobID},
			":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if isConditionFailed(err) {
		if _, getErr := d.GetPlumber(ctx, plumberID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("plumber %s: %w", plumberID, ErrPlumberUnavailable)
	}
	if err != nil {
		return fmt.Errorf("failed to claim plumber: %w", err)
	}

	return nil
}

func (d *DynamoDBStorage) ReleasePlumber(ctx context.Context, plumberID string) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tables.Plumbers),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: plumberID},
		},
		UpdateExpression:    aws.String("SET available = :true, updated_at = :now REMOVE current_job_id"),
		ConditionExpression: aws.String(conditionExists),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("plumber %s: %w", plumberID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to release plumber: %w", err)
	}

	return nil
}

func (d *DynamoDBStorage) CreatePayment(ctx context.Context, payment *Payment) error {
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	return d.putItem(ctx, d.tables.Payments, "payment", payment.ID, payment, conditionNotExists)
}

func (d *DynamoDBStorage) UpdatePayment(ctx context.Context, payment *Payment) error {
	return d.putItem(ctx, d.tables.Payments, "payment", payment.ID, payment, conditionExists)
}

func (d *DynamoDBStorage) GetPaymentsByJob(ctx context.Context, jobID string) ([]*Payment, error) {
	result, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tables.Payments),
		IndexName:              aws.String(paymentJobIndex),
		KeyConditionExpression: aws.String("job_id = :jobID"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":jobID": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query payments by job: %w", err)
	}

	var payments []*Payment
	for _, item := range result.Items {
		var payment Payment
		if err := attributevalue.UnmarshalMap(item, &payment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
		}
		payments = append(payments, &payment)
	}

	return payments, nil
}

// putItem writes v keyed by "id". condition guards create (must not exist) and
// update (must exist); a failed guard maps to the matching sentinel.
func (d *DynamoDBStorage) putItem(ctx context.Context, table, kind, id string, v interface{}, condition string) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	if isConditionFailed(err) {
		if condition == conditionNotExists {
			return fmt.Errorf("%s %s: %w", kind, id, ErrAlreadyExists)
		}
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", kind, err)
	}

	return nil
}

func (d *DynamoDBStorage) getItem(ctx context.Context, table, kind, id string, out interface{}) error {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", kind, err)
	}

	if result.Item == nil {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}

	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}

	return nil
}

func (d *DynamoDBStorage) scan(ctx context.Context, input *dynamodb.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		result, err := d.client.Scan(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func unmarshalJobs(items []map[string]types.AttributeValue) ([]*Job, error) {
	var jobs []*Job
	for _, item := range items {
		var job Job
		if err := attributevalue.UnmarshalMap(item, &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return err != nil && errors.As(err, &ccf)
}
