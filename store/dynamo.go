package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/entity"
	"github.com/jacentio/canopy/internal/shard"
)

// maxTransactItems is the DynamoDB TransactWriteItems item limit.
const maxTransactItems = 100

// Attributes only present in the DynamoDB item layout.
const (
	attrPK       = "pk"
	attrSK       = "sk"
	attrScopePK  = "scope_pk"
	attrParentPK = "parent_pk"

	constraintSK = "CONSTRAINT"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoBackend.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoBackend stores every record kind in one table keyed by entity ref,
// with two GSIs: scope_index (scope_pk = "kind#organization") and
// parent_index (sharded parent_pk). Unique constraints live in a second
// table. Writes are buffered and committed with one TransactWriteItems call.
//
// GSI queries are eventually consistent; records read through Query are
// re-checked by version at commit.
type DynamoBackend struct {
	client DynamoAPI
	config Config
}

// NewDynamoBackend creates a DynamoBackend.
func NewDynamoBackend(client DynamoAPI, config Config) *DynamoBackend {
	config.validate()
	return &DynamoBackend{client: client, config: config}
}

// Config returns the effective configuration.
func (d *DynamoBackend) Config() Config {
	return d.config
}

// Begin starts a transaction.
func (d *DynamoBackend) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &dynamoTx{backend: d, buf: newTxBuffer()}, nil
}

// ScopePK returns the scope_index partition key of a record. Organizations
// share one partition.
func ScopePK(kind entity.Kind, organization string) string {
	if kind == entity.KindOrganization {
		return string(entity.KindOrganization)
	}
	return string(kind) + "#" + organization
}

type dynamoTx struct {
	backend *DynamoBackend
	buf     *txBuffer
}

func (t *dynamoTx) fetch(ctx context.Context, ref entity.Ref) (*Item, error) {
	d := t.backend
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.config.RecordsTable),
		Key:            recordKey(ref),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	return ItemFromRaw(out.Item), nil
}

func (t *dynamoTx) Get(ctx context.Context, ref entity.Ref) (*Item, error) {
	return t.buf.get(ctx, ref, t.fetch)
}

func (t *dynamoTx) Query(ctx context.Context, f Filter) ([]*Item, error) {
	if t.buf.done {
		return nil, ErrTxDone
	}
	inputs, err := t.backend.queryInputs(f)
	if err != nil {
		return nil, err
	}

	var fetched []*Item
	if len(inputs) == 1 {
		fetched, err = t.backend.runQuery(ctx, inputs[0])
		if err != nil {
			return nil, err
		}
	} else {
		fetched, err = t.backend.fanOut(ctx, inputs)
		if err != nil {
			return nil, err
		}
	}

	sortItems(fetched)
	return t.buf.merge(f, fetched), nil
}

func (t *dynamoTx) UniqueOwner(ctx context.Context, key string) (entity.Ref, bool, error) {
	return t.buf.uniqueOwner(ctx, key, t.backend.uniqueOwner)
}

func (t *dynamoTx) Put(_ context.Context, item *Item) error {
	return t.buf.put(item)
}

func (t *dynamoTx) Purge(_ context.Context, ref entity.Ref) error {
	return t.buf.purge(ref)
}

func (t *dynamoTx) Rollback() error {
	if !t.buf.done {
		t.buf.finish()
	}
	return nil
}

func (t *dynamoTx) Commit(ctx context.Context) error {
	if t.buf.done {
		return ErrTxDone
	}
	defer t.buf.finish()

	writes := t.buf.pending()
	if len(writes) == 0 {
		return nil
	}

	items, ops := t.backend.transactItems(writes)
	if len(items) > maxTransactItems {
		return fmt.Errorf("%d items: %w", len(items), ErrTransactionTooLarge)
	}

	_, err := t.backend.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapCommitError(err, ops)
}

// opKind tags each transact item so cancellation reasons can be mapped.
type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opPurge
	opUniquePut
	opUniqueDelete
)

type txOp struct {
	kind opKind
	ref  entity.Ref
}

func (d *DynamoBackend) transactItems(writes []*write) ([]types.TransactWriteItem, []txOp) {
	var items []types.TransactWriteItem
	var ops []txOp

	added := make(map[string]entity.Ref)
	removed := make(map[string]entity.Ref)

	for _, w := range writes {
		switch {
		case w.purge:
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName:                 aws.String(d.config.RecordsTable),
					Key:                       recordKey(w.ref),
					ConditionExpression:       aws.String("#version = :expected"),
					ExpressionAttributeNames:  map[string]string{"#version": AttrVersion},
					ExpressionAttributeValues: map[string]types.AttributeValue{":expected": numberAttr(w.expected)},
				},
			})
			ops = append(ops, txOp{kind: opPurge, ref: w.ref})

		case w.prev == nil:
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName:           aws.String(d.config.RecordsTable),
					Item:                d.storedItem(w.item),
					ConditionExpression: aws.String("attribute_not_exists(pk)"),
				},
			})
			ops = append(ops, txOp{kind: opInsert, ref: w.ref})

		default:
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName:                 aws.String(d.config.RecordsTable),
					Item:                      d.storedItem(w.item),
					ConditionExpression:       aws.String("#version = :expected"),
					ExpressionAttributeNames:  map[string]string{"#version": AttrVersion},
					ExpressionAttributeValues: map[string]types.AttributeValue{":expected": numberAttr(w.expected)},
				},
			})
			ops = append(ops, txOp{kind: opUpdate, ref: w.ref})
		}

		var oldKeys, newKeys []string
		if w.prev != nil {
			oldKeys = w.prev.UniqueKeys
		}
		if !w.purge {
			newKeys = w.item.UniqueKeys
		}
		for _, k := range oldKeys {
			if !containsString(newKeys, k) {
				removed[k] = w.ref
			}
		}
		for _, k := range newKeys {
			if !containsString(oldKeys, k) {
				added[k] = w.ref
			}
		}
	}

	for _, k := range sortedKeys(added) {
		ref := added[k]
		put := &types.Put{
			TableName: aws.String(d.config.UniqueTable),
			Item: map[string]types.AttributeValue{
				attrPK:      &types.AttributeValueMemberS{Value: k},
				attrSK:      &types.AttributeValueMemberS{Value: constraintSK},
				AttrRef:     &types.AttributeValueMemberS{Value: ref.String()},
				AttrKind:    &types.AttributeValueMemberS{Value: string(ref.Kind)},
			},
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		}
		if _, moving := removed[k]; moving {
			// Released and claimed in the same transaction.
			put.ConditionExpression = nil
			delete(removed, k)
		}
		items = append(items, types.TransactWriteItem{Put: put})
		ops = append(ops, txOp{kind: opUniquePut, ref: ref})
	}
	for _, k := range sortedKeys(removed) {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(d.config.UniqueTable),
				Key:       constraintKey(k),
			},
		})
		ops = append(ops, txOp{kind: opUniqueDelete, ref: removed[k]})
	}

	return items, ops
}

// storedItem adds the key and index attributes to a record.
func (d *DynamoBackend) storedItem(item *Item) map[string]types.AttributeValue {
	raw := make(map[string]types.AttributeValue, len(item.Raw)+3)
	for k, v := range item.Raw {
		raw[k] = v
	}
	ref := item.Ref()
	raw[attrPK] = &types.AttributeValueMemberS{Value: ref.String()}
	raw[attrScopePK] = &types.AttributeValueMemberS{Value: ScopePK(item.Kind, item.Organization)}
	if item.ParentRef != "" {
		raw[attrParentPK] = &types.AttributeValueMemberS{
			Value: shard.ParentPK(item.ParentRef, ref.String(), d.config.NumShards),
		}
	} else {
		delete(raw, attrParentPK)
	}
	return raw
}

// mapCommitError maps DynamoDB transaction errors to store errors.
func mapCommitError(err error, ops []txOp) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || i >= len(ops) {
				continue
			}
			op := ops[i]
			switch *reason.Code {
			case "ConditionalCheckFailed":
				switch op.kind {
				case opInsert:
					return fmt.Errorf("%s: %w", op.ref, ErrAlreadyExists)
				case opUniquePut:
					return fmt.Errorf("%s: %w", op.ref, ErrDuplicateValue)
				default:
					return fmt.Errorf("%s: %w", op.ref, ErrConcurrentModification)
				}
			case "TransactionConflict":
				return fmt.Errorf("%s: %w", op.ref, ErrConcurrentModification)
			}
		}
	}

	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("%s: %w", err.Error(), ErrConcurrentModification)
	}

	return err
}

func (d *DynamoBackend) uniqueOwner(ctx context.Context, key string) (entity.Ref, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.config.UniqueTable),
		Key:            constraintKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entity.Ref{}, false, fmt.Errorf("get unique constraint: %w", err)
	}
	if out.Item == nil {
		return entity.Ref{}, false, nil
	}
	ref, err := entity.ParseRef(stringAttr(out.Item, AttrRef))
	if err != nil {
		return entity.Ref{}, false, fmt.Errorf("unique constraint %s: %w", key, err)
	}
	return ref, true, nil
}

// queryInputs builds one query per partition the filter must read.
func (d *DynamoBackend) queryInputs(f Filter) ([]*dynamodb.QueryInput, error) {
	var keyName, indexName string
	var partitions []string

	switch {
	case f.ParentRef != "":
		keyName, indexName = attrParentPK, d.config.ParentIndex
		partitions = shard.ParentPKs(f.ParentRef, d.config.NumShards)
	case f.Kind == entity.KindOrganization || (f.Kind != "" && f.Organization != ""):
		keyName, indexName = attrScopePK, d.config.ScopeIndex
		partitions = []string{ScopePK(f.Kind, f.Organization)}
	default:
		return nil, fmt.Errorf("%s: %w", f.Kind, ErrUnscopedQuery)
	}

	expr, names, values := filterExpression(f)
	names["#key"] = keyName

	inputs := make([]*dynamodb.QueryInput, 0, len(partitions))
	for _, pk := range partitions {
		vals := mergeExprValues(values, map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: pk},
		})
		in := &dynamodb.QueryInput{
			TableName:                 aws.String(d.config.RecordsTable),
			IndexName:                 aws.String(indexName),
			KeyConditionExpression:    aws.String("#key = :key"),
			ExpressionAttributeNames:  mergeExprNames(names),
			ExpressionAttributeValues: vals,
		}
		if expr != "" {
			in.FilterExpression = aws.String(expr)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// filterExpression renders a filter as a DynamoDB filter expression.
// Limit is applied after merging buffered writes, never here.
func filterExpression(f Filter) (string, map[string]string, map[string]types.AttributeValue) {
	var clauses []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	if vis := VisibilityFilterExpr(f.Visibility); vis != "" {
		clauses = append(clauses, vis)
		names = mergeExprNames(names, VisibilityFilterNames(f.Visibility))
		values = mergeExprValues(values, VisibilityFilterValues(f.Visibility))
	}

	eq := func(attr, value string) {
		n := len(values)
		names["#"+attr] = attr
		values[fmt.Sprintf(":m%d", n)] = &types.AttributeValueMemberS{Value: value}
		clauses = append(clauses, fmt.Sprintf("#%s = :m%d", attr, n))
	}
	if f.Kind != "" {
		eq(AttrKind, string(f.Kind))
	}
	if f.Organization != "" {
		eq(AttrOrganization, f.Organization)
	}
	if f.Department != "" {
		eq(AttrDepartment, f.Department)
	}
	if f.ParentRef != "" {
		eq(AttrParentRef, f.ParentRef)
	}

	for i, c := range f.Equals {
		path := pathExpression(names, fmt.Sprintf("e%d", i), c.Path)
		values[fmt.Sprintf(":e%d", i)] = c.Value
		clauses = append(clauses, fmt.Sprintf("%s = :e%d", path, i))
	}
	for i, c := range f.Contains {
		path := pathExpression(names, fmt.Sprintf("c%d", i), c.Path)
		values[fmt.Sprintf(":c%d", i)] = c.Value
		clauses = append(clauses, fmt.Sprintf("contains(%s, :c%d)", path, i))
	}
	if len(f.ExcludeIDs) > 0 {
		names["#id"] = AttrID
		for i, id := range f.ExcludeIDs {
			values[fmt.Sprintf(":x%d", i)] = &types.AttributeValueMemberS{Value: id}
			clauses = append(clauses, fmt.Sprintf("#id <> :x%d", i))
		}
	}

	return strings.Join(clauses, " AND "), names, values
}

// pathExpression registers placeholder names for a dotted attribute path.
func pathExpression(names map[string]string, prefix, path string) string {
	parts := strings.Split(path, ".")
	placeholders := make([]string, len(parts))
	for i, p := range parts {
		ph := fmt.Sprintf("#%s_%d", prefix, i)
		names[ph] = p
		placeholders[i] = ph
	}
	return strings.Join(placeholders, ".")
}

func (d *DynamoBackend) runQuery(ctx context.Context, in *dynamodb.QueryInput) ([]*Item, error) {
	var items []*Item
	paginator := dynamodb.NewQueryPaginator(d.client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", aws.ToString(in.IndexName), err)
		}
		for _, raw := range page.Items {
			items = append(items, ItemFromRaw(raw))
		}
	}
	return items, nil
}

// fanOut runs one query per shard in parallel.
func (d *DynamoBackend) fanOut(ctx context.Context, inputs []*dynamodb.QueryInput) ([]*Item, error) {
	var mu sync.Mutex
	var all []*Item
	var wg sync.WaitGroup
	errs := make(chan error, len(inputs))

	for n, in := range inputs {
		wg.Add(1)
		go func(n int, in *dynamodb.QueryInput) {
			defer wg.Done()
			items, err := d.runQuery(ctx, in)
			if err != nil {
				errs <- fmt.Errorf("shard %02x: %w", n, err)
				return
			}
			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
		}(n, in)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}

func recordKey(ref entity.Ref) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: ref.String()},
	}
}

func constraintKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: key},
		attrSK: &types.AttributeValueMemberS{Value: constraintSK},
	}
}

func numberAttr(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]entity.Ref) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
