package azuretable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

type AzureTable struct {
	store TableStore
}

func New(profile config.AzureTableProfile, doer transport.HTTPDoer) (*AzureTable, error) {
	store, err := NewAzureStore(profile, doer)
	if err != nil {
		return nil, err
	}
	return NewWithStore(store), nil
}

func NewWithStore(store TableStore) *AzureTable {
	return &AzureTable{store: store}
}

func (a *AzureTable) Name() string {
	return "Azure Storage Table"
}

func (a *AzureTable) Description() string {
	return "Creates tables and reads, inserts and deletes entities in Azure Table Storage."
}

// ValidateConnection lists the tables of the account.
func (a *AzureTable) ValidateConnection(ctx context.Context) error {
	if _, err := a.store.ListTables(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

func (a *AzureTable) Actions() []domain.Action {
	table := domain.Param{Name: "table_name", Description: "Table name, in a format supported by Azure", Type: domain.Text}

	return []domain.Action{
		{
			ID:          "list_table",
			Name:        "List Tables",
			Description: "Lists every table of the account",
			Run:         a.listTables,
		},
		{
			ID:          "create_table",
			Name:        "Create Table",
			Description: "Creates the table unless it already exists",
			Params:      []domain.Param{table},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				if err := a.store.CreateTable(ctx, args.String("table_name")); err != nil {
					return nil, err
				}
				return domain.Result{"message": "created"}, nil
			},
		},
		{
			ID:          "delete_table",
			Name:        "Delete Table",
			Description: "Deletes the table",
			Params:      []domain.Param{table},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				if err := a.store.DeleteTable(ctx, args.String("table_name")); err != nil {
					return nil, err
				}
				return domain.Result{"message": "deleted"}, nil
			},
		},
		{
			ID:          "insert_entity",
			Name:        "Insert Entity",
			Description: "Inserts one entity into the table",
			Params: []domain.Param{
				table,
				{Name: "entity", Description: "JSON object of the entity, including PartitionKey and RowKey", Type: domain.JSON},
			},
			Run: a.insertEntity,
		},
		{
			ID:          "query_entities",
			Name:        "Query Entities",
			Description: "Queries entities with an OData filter",
			Params: []domain.Param{
				table,
				{Name: "filters", Description: "OData filter, e.g. RowKey eq '114'", Type: domain.Text, Optional: true},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				entities, err := a.query(ctx, args.String("table_name"), args.Raw("filters"))
				if err != nil {
					return domain.Result{"message": err.Error()}, nil
				}
				if len(entities) == 0 {
					return domain.Result{"message": "zero match"}, nil
				}
				return entities, nil
			},
		},
		{
			ID:          "list_entities",
			Name:        "List Entities",
			Description: "Lists every entity of the table",
			Params:      []domain.Param{table},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				entities, err := a.query(ctx, args.String("table_name"), "")
				if err != nil {
					return domain.Result{"message": err.Error()}, nil
				}
				if entities == nil {
					entities = []any{}
				}
				return entities, nil
			},
		},
		{
			ID:          "delete_entity",
			Name:        "Delete Entity",
			Description: "Deletes one entity by PartitionKey and RowKey",
			Params: []domain.Param{
				table,
				{Name: "PartitionKey", Description: "Partition key of the entity", Type: domain.Text},
				{Name: "RowKey", Description: "Row key of the entity", Type: domain.Text},
			},
			Run: func(ctx context.Context, args domain.Args) (any, error) {
				err := a.store.DeleteEntity(ctx, args.String("table_name"), args.Raw("PartitionKey"), args.Raw("RowKey"))
				if err != nil {
					return domain.Result{"message": err.Error()}, nil
				}
				return domain.Result{"message": "deleted"}, nil
			},
		},
	}
}

func (a *AzureTable) listTables(ctx context.Context, _ domain.Args) (any, error) {
	names, err := a.store.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]any, 0, len(names))
	for _, name := range names {
		tables = append(tables, domain.Result{"table_name": name})
	}
	return tables, nil
}

func (a *AzureTable) insertEntity(ctx context.Context, args domain.Args) (any, error) {
	// Values stay raw so large integers reach the table unchanged.
	var entity map[string]json.RawMessage
	if err := args.JSON("entity", &entity); err != nil {
		return nil, err
	}
	for _, key := range []string{"PartitionKey", "RowKey"} {
		var v *string
		if err := json.Unmarshal(entity[key], &v); err != nil || v == nil {
			return nil, domain.BadArgument("entity", "must carry a string %s", key)
		}
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}

	err = a.store.AddEntity(ctx, args.String("table_name"), data)
	var se *StoreError
	switch {
	case err == nil:
		return domain.Result{"message": "inserted"}, nil
	case errors.Is(err, ErrEntityExists):
		return domain.Result{"message": "failed"}, nil
	case errors.As(err, &se):
		return domain.Result{"message": se.Message, "status": se.StatusCode, "reason": se.Reason()}, nil
	default:
		return nil, err
	}
}

// query returns each entity as a JSON string with the OData annotations
// removed.
func (a *AzureTable) query(ctx context.Context, table, filter string) ([]any, error) {
	raw, err := a.store.QueryEntities(ctx, table, strings.TrimSpace(filter))
	if err != nil {
		return nil, err
	}
	var entities []any
	for _, data := range raw {
		var entity map[string]json.RawMessage
		if err := json.Unmarshal(data, &entity); err != nil {
			return nil, fmt.Errorf("invalid entity in %s: %w", table, err)
		}
		for key := range entity {
			if strings.HasPrefix(key, "odata.") || strings.Contains(key, "@odata.") {
				delete(entity, key)
			}
		}
		encoded, err := json.Marshal(entity)
		if err != nil {
			return nil, err
		}
		entities = append(entities, string(encoded))
	}
	return entities, nil
}
