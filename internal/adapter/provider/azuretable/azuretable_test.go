package azuretable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

// memoryStore keeps tables in memory and ignores OData filters beyond
// recording them.
type memoryStore struct {
	mu         sync.Mutex
	tables     map[string]map[string][]byte
	lastFilter string
	failWith   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tables: map[string]map[string][]byte{}}
}

func (m *memoryStore) ListTables(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var names []string
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryStore) CreateTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = map[string][]byte{}
	}
	return nil
}

func (m *memoryStore) DeleteTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, table)
	return nil
}

func (m *memoryStore) AddEntity(_ context.Context, table string, entity []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	rows, ok := m.tables[table]
	if !ok {
		return &StoreError{StatusCode: http.StatusNotFound, Code: "TableNotFound", Message: "table not found"}
	}
	var keys struct{ PartitionKey, RowKey string }
	if err := json.Unmarshal(entity, &keys); err != nil {
		return err
	}
	id := keys.PartitionKey + "/" + keys.RowKey
	if _, exists := rows[id]; exists {
		return ErrEntityExists
	}
	rows[id] = entity
	return nil
}

func (m *memoryStore) QueryEntities(_ context.Context, table, filter string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	rows, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s not found", table)
	}
	var out [][]byte
	for _, row := range rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memoryStore) DeleteEntity(_ context.Context, table, pk, rk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("table %s not found", table)
	}
	delete(rows, pk+"/"+rk)
	return nil
}

func run(t *testing.T, a *AzureTable, id string, args domain.Args) (any, error) {
	t.Helper()
	for _, action := range a.Actions() {
		if action.ID == id {
			bound, err := action.Bind(args)
			if err != nil {
				return nil, err
			}
			return action.Run(context.Background(), bound)
		}
	}
	t.Fatalf("action %s not found", id)
	return nil, nil
}

func TestInsertThenQueryRoundTrip(t *testing.T) {
	store := newMemoryStore()
	a := NewWithStore(store)

	result, err := run(t, a, "create_table", domain.Args{"table_name": "alerts"})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"message": "created"}, result)

	result, err = run(t, a, "insert_entity", domain.Args{
		"table_name": "alerts",
		"entity":     `{"PartitionKey":"p1","RowKey":"114","severity":"high"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"message": "inserted"}, result)

	result, err = run(t, a, "query_entities", domain.Args{"table_name": "alerts", "filters": "RowKey eq '114'"})
	require.NoError(t, err)
	assert.Equal(t, "RowKey eq '114'", store.lastFilter)

	rows := result.([]any)
	require.Len(t, rows, 1)
	var entity map[string]any
	require.NoError(t, json.Unmarshal([]byte(rows[0].(string)), &entity))
	assert.Equal(t, map[string]any{"PartitionKey": "p1", "RowKey": "114", "severity": "high"}, entity)
}

func TestInsertThenQueryKeepsLargeIntegers(t *testing.T) {
	store := newMemoryStore()
	a := NewWithStore(store)
	_, err := run(t, a, "create_table", domain.Args{"table_name": "events"})
	require.NoError(t, err)

	result, err := run(t, a, "insert_entity", domain.Args{
		"table_name": "events",
		"entity":     `{"PartitionKey":"p1","RowKey":"1","event_id":12345678901234567,"seen_ns":1718000000123456789,"closed":false}`,
	})
	require.NoError(t, err)
	require.Equal(t, domain.Result{"message": "inserted"}, result)
	assert.Contains(t, string(store.tables["events"]["p1/1"]), `"event_id":12345678901234567`)

	result, err = run(t, a, "list_entities", domain.Args{"table_name": "events"})
	require.NoError(t, err)
	rows := result.([]any)
	require.Len(t, rows, 1)
	assert.JSONEq(t,
		`{"PartitionKey":"p1","RowKey":"1","event_id":12345678901234567,"seen_ns":1718000000123456789,"closed":false}`,
		rows[0].(string))
	assert.Contains(t, rows[0].(string), `"seen_ns":1718000000123456789`)
}

func TestInsertDuplicateIsSoftFailure(t *testing.T) {
	a := NewWithStore(newMemoryStore())
	_, err := run(t, a, "create_table", domain.Args{"table_name": "alerts"})
	require.NoError(t, err)

	entity := domain.Args{"table_name": "alerts", "entity": `{"PartitionKey":"p1","RowKey":"1"}`}
	_, err = run(t, a, "insert_entity", entity)
	require.NoError(t, err)

	result, err := run(t, a, "insert_entity", entity)
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"message": "failed"}, result)
}

func TestInsertRejectedByStore(t *testing.T) {
	a := NewWithStore(newMemoryStore())

	result, err := run(t, a, "insert_entity", domain.Args{
		"table_name": "missing",
		"entity":     `{"PartitionKey":"p1","RowKey":"1"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"message": "table not found", "status": 404, "reason": "TableNotFound"}, result)
}

func TestInsertValidatesEntity(t *testing.T) {
	a := NewWithStore(newMemoryStore())

	for name, entity := range map[string]string{
		"invalid json":    `{"PartitionKey":`,
		"missing row key": `{"PartitionKey":"p1"}`,
		"numeric key":     `{"PartitionKey":"p1","RowKey":7}`,
		"null key":        `{"PartitionKey":null,"RowKey":"1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, a, "insert_entity", domain.Args{"table_name": "alerts", "entity": entity})
			var argErr *domain.ArgumentError
			assert.True(t, errors.As(err, &argErr), "got %v", err)
		})
	}
}

func TestQueryEntitiesZeroMatchAndFailure(t *testing.T) {
	a := NewWithStore(newMemoryStore())
	_, err := run(t, a, "create_table", domain.Args{"table_name": "empty"})
	require.NoError(t, err)

	result, err := run(t, a, "query_entities", domain.Args{"table_name": "empty"})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"message": "zero match"}, result)

	result, err = run(t, a, "list_entities", domain.Args{"table_name": "empty"})
	require.NoError(t, err)
	assert.Equal(t, []any{}, result)

	result, err = run(t, a, "list_entities", domain.Args{"table_name": "nope"})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"message": "table nope not found"}, result)
}

func TestListDeleteTablesAndEntities(t *testing.T) {
	a := NewWithStore(newMemoryStore())
	for _, name := range []string{"b", "a"} {
		_, err := run(t, a, "create_table", domain.Args{"table_name": name})
		require.NoError(t, err)
	}

	result, err := run(t, a, "list_table", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{domain.Result{"table_name": "a"}, domain.Result{"table_name": "b"}}, result)

	_, err = run(t, a, "insert_entity", domain.Args{"table_name": "a", "entity": `{"PartitionKey":"p","RowKey":"r"}`})
	require.NoError(t, err)
	result, err = run(t, a, "delete_entity", domain.Args{"table_name": "a", "PartitionKey": "p", "RowKey": "r"})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"message": "deleted"}, result)

	result, err = run(t, a, "delete_table", domain.Args{"table_name": "b"})
	require.NoError(t, err)
	assert.Equal(t, domain.Result{"message": "deleted"}, result)
	names, _ := a.store.ListTables(context.Background())
	assert.Equal(t, []string{"a"}, names)
}

func TestValidateConnection(t *testing.T) {
	store := newMemoryStore()
	a := NewWithStore(store)
	require.NoError(t, a.ValidateConnection(context.Background()))

	store.failWith = errors.New("403 AuthenticationFailed")
	assert.ErrorContains(t, a.ValidateConnection(context.Background()), "authentication failed")
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(&azcore.ResponseError{ErrorCode: "EntityAlreadyExists", StatusCode: http.StatusConflict}), ErrEntityExists)

	plain := errors.New("dial tcp: timeout")
	assert.Equal(t, plain, translate(plain))
}
