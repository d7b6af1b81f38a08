package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

var errDuplicateID = errors.New("booking: id already exists")

const conditionalCheckFailed = "ConditionalCheckFailed"

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(context.Context, *dynamodb.BatchGetItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type bookingRecord struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	Booking
}

type pointerRecord struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	BookingID string    `dynamodbav:"booking_id"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

type txRecord struct {
	value     any
	condition string
}

func canonicalKey(id string) (string, string) { return "BOOKING#" + id, "BOOKING" }

func viewSortKey(b *Booking) string {
	return "BOOKING#" + b.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + b.ID
}

func userPK(requesterID string) string   { return "USER#" + requesterID }
func servicePK(collection string) string { return "SERVICE#" + collection }
func slotPK(subjectRef string, s Schedule) string {
	return "SLOT#" + slotKey(subjectRef, s)
}
func idempotencyPK(requesterID, key string) string {
	return "IDEMPOTENCY#" + idempotencyKey(requesterID, key)
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// DynamoRepository files every booking under three partitions (canonical,
// requester view, service view) written in one transaction together with the
// slot lock, the idempotency record and the outbox entry.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Repository = (*DynamoRepository)(nil)

func NewDynamoRepository(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoRepository {
	if client == nil {
		panic("booking: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("booking: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoRepository{client: client, tableName: tableName, logger: logger}
}

func (r *DynamoRepository) put(v any, condition string) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("booking: failed to marshal item: %w", err)
	}
	p := &types.Put{TableName: aws.String(r.tableName), Item: item}
	if condition != "" {
		p.ConditionExpression = aws.String(condition)
	}
	return types.TransactWriteItem{Put: p}, nil
}

func (r *DynamoRepository) Create(ctx context.Context, b *Booking, event events.Entry) (*Booking, bool, error) {
	pk, sk := canonicalKey(b.ID)
	records := []txRecord{
		{bookingRecord{PK: pk, SK: sk, Booking: *b}, "attribute_not_exists(PK)"},
		{bookingRecord{PK: userPK(b.RequesterID), SK: viewSortKey(b), Booking: *b}, ""},
		{bookingRecord{PK: servicePK(b.ServiceCollection), SK: viewSortKey(b), Booking: *b}, ""},
	}
	slotIdx, idemIdx := -1, -1
	if b.HoldsSlot() {
		slotIdx = len(records)
		records = append(records, txRecord{pointerRecord{PK: slotPK(b.SubjectRef, *b.Schedule), SK: "LOCK", BookingID: b.ID, CreatedAt: b.CreatedAt}, "attribute_not_exists(PK)"})
	}
	if b.IdempotencyKey != "" {
		idemIdx = len(records)
		records = append(records, txRecord{pointerRecord{PK: idempotencyPK(b.RequesterID, b.IdempotencyKey), SK: "KEY", BookingID: b.ID, CreatedAt: b.CreatedAt}, "attribute_not_exists(PK)"})
	}

	writes := make([]types.TransactWriteItem, 0, len(records)+1)
	for _, rec := range records {
		w, err := r.put(rec.value, rec.condition)
		if err != nil {
			return nil, false, err
		}
		writes = append(writes, w)
	}
	if event.ID != "" {
		w, err := events.TransactPut(r.tableName, event)
		if err != nil {
			return nil, false, err
		}
		writes = append(writes, w)
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err == nil {
		return b.Clone(), true, nil
	}

	failed := cancelledIndexes(err)
	switch {
	case idemIdx >= 0 && failed[idemIdx]:
		existing, getErr := r.byIdempotencyKey(ctx, b.RequesterID, b.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	case slotIdx >= 0 && failed[slotIdx]:
		return nil, false, apperr.Conflict(nil)
	case failed[0]:
		return nil, false, apperr.Persistence(errDuplicateID)
	}
	return nil, false, apperr.Persistence(fmt.Errorf("booking: failed to write booking: %w", err))
}

// cancelledIndexes returns the transaction items whose condition failed.
func cancelledIndexes(err error) map[int]bool {
	out := map[int]bool{}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return out
	}
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == conditionalCheckFailed {
			out[i] = true
		}
	}
	return out
}

func (r *DynamoRepository) byIdempotencyKey(ctx context.Context, requesterID, key string) (*Booking, error) {
	b, found, err := r.FindByIdempotencyKey(ctx, requesterID, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.Persistence(errors.New("booking: idempotency record vanished"))
	}
	return b, nil
}

func (r *DynamoRepository) FindByIdempotencyKey(ctx context.Context, requesterID, key string) (*Booking, bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            keyOf(idempotencyPK(requesterID, key), "KEY"),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, apperr.Persistence(fmt.Errorf("booking: failed to read idempotency record: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	var ptr pointerRecord
	if err := attributevalue.UnmarshalMap(out.Item, &ptr); err != nil {
		return nil, false, fmt.Errorf("booking: failed to unmarshal idempotency record: %w", err)
	}
	b, err := r.Get(ctx, ptr.BookingID)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *DynamoRepository) Get(ctx context.Context, id string) (*Booking, error) {
	pk, sk := canonicalKey(id)
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            keyOf(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperr.Persistence(fmt.Errorf("booking: failed to get booking: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, apperr.NotFound("booking")
	}
	var rec bookingRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("booking: failed to unmarshal booking: %w", err)
	}
	return &rec.Booking, nil
}

func (r *DynamoRepository) ListByRequester(ctx context.Context, requesterID string) ([]*Booking, error) {
	return r.queryView(ctx, userPK(requesterID))
}

func (r *DynamoRepository) ListByService(ctx context.Context, collection string) ([]*Booking, error) {
	return r.queryView(ctx, servicePK(collection))
}

func (r *DynamoRepository) queryView(ctx context.Context, pk string) ([]*Booking, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: pk},
			":prefix": &types.AttributeValueMemberS{Value: "BOOKING#"},
		},
		ScanIndexForward: aws.Bool(false),
	}
	var bookings []*Booking
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, apperr.Persistence(fmt.Errorf("booking: failed to query %s: %w", pk, err))
		}
		for _, av := range out.Items {
			var rec bookingRecord
			if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
				r.logger.Error("skipping unreadable booking view item", "error", err, "pk", pk)
				continue
			}
			b := rec.Booking
			bookings = append(bookings, &b)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return bookings, nil
}

func (r *DynamoRepository) UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time, event events.Entry) (*Booking, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, statusChanged(current.Status)
	}

	at = at.UTC()
	atAV, err := attributevalue.Marshal(at)
	if err != nil {
		return nil, fmt.Errorf("booking: failed to marshal timestamp: %w", err)
	}
	update := func(pk, sk string) types.TransactWriteItem {
		return types.TransactWriteItem{Update: &types.Update{
			TableName:           aws.String(r.tableName),
			Key:                 keyOf(pk, sk),
			UpdateExpression:    aws.String("SET #status = :to, updated_at = :at"),
			ConditionExpression: aws.String("#status = :from"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":to":   &types.AttributeValueMemberS{Value: string(to)},
				":from": &types.AttributeValueMemberS{Value: string(from)},
				":at":   atAV,
			},
		}}
	}
	pk, sk := canonicalKey(id)
	writes := []types.TransactWriteItem{
		update(pk, sk),
		update(userPK(current.RequesterID), viewSortKey(current)),
		update(servicePK(current.ServiceCollection), viewSortKey(current)),
	}

	next := current.Clone()
	next.Status = to
	next.UpdatedAt = at
	if current.HoldsSlot() && !next.HoldsSlot() {
		writes = append(writes, types.TransactWriteItem{Delete: &types.Delete{
			TableName:           aws.String(r.tableName),
			Key:                 keyOf(slotPK(current.SubjectRef, *current.Schedule), "LOCK"),
			ConditionExpression: aws.String("booking_id = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":id": &types.AttributeValueMemberS{Value: id},
			},
		}})
	}
	if event.ID != "" {
		w, err := events.TransactPut(r.tableName, event)
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
		if failed := cancelledIndexes(err); failed[0] {
			latest, getErr := r.Get(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, statusChanged(latest.Status)
		}
		return nil, apperr.Persistence(fmt.Errorf("booking: failed to update status: %w", err))
	}
	return next, nil
}

func (r *DynamoRepository) TakenSlots(ctx context.Context, subjectRef, date string, slots []string) (map[string]bool, error) {
	taken := make(map[string]bool)
	if len(slots) == 0 {
		return taken, nil
	}
	bySlotPK := make(map[string]string, len(slots))
	keys := make([]map[string]types.AttributeValue, 0, len(slots))
	for _, slot := range slots {
		pk := slotPK(subjectRef, Schedule{Date: date, Time: slot})
		bySlotPK[pk] = slot
		keys = append(keys, keyOf(pk, "LOCK"))
	}

	request := map[string]types.KeysAndAttributes{
		r.tableName: {Keys: keys, ConsistentRead: aws.Bool(true)},
	}
	for attempt := 0; len(request) > 0 && attempt < 3; attempt++ {
		out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return nil, apperr.Persistence(fmt.Errorf("booking: failed to read slot locks: %w", err))
		}
		for _, av := range out.Responses[r.tableName] {
			var ptr pointerRecord
			if err := attributevalue.UnmarshalMap(av, &ptr); err != nil {
				return nil, fmt.Errorf("booking: failed to unmarshal slot lock: %w", err)
			}
			if slot, ok := bySlotPK[ptr.PK]; ok {
				taken[slot] = true
			}
		}
		request = out.UnprocessedKeys
	}
	if len(request) > 0 {
		return nil, apperr.Persistence(errors.New("booking: slot locks left unprocessed"))
	}
	return taken, nil
}
