package azuretable

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
)

const (
	codeEntityExists = "EntityAlreadyExists"
	codeTableExists  = "TableAlreadyExists"
)

// ErrEntityExists is returned by AddEntity when the PartitionKey/RowKey pair
// is already taken.
var ErrEntityExists = errors.New("entity already exists")

// StoreError is a rejected storage call.
type StoreError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StoreError) Error() string {
	return e.Message
}

func (e *StoreError) Reason() string {
	if e.Code != "" {
		return e.Code
	}
	return http.StatusText(e.StatusCode)
}

// TableStore is the part of Azure Table Storage the actions need.
type TableStore interface {
	ListTables(ctx context.Context) ([]string, error)
	// CreateTable succeeds when the table already exists.
	CreateTable(ctx context.Context, table string) error
	DeleteTable(ctx context.Context, table string) error
	AddEntity(ctx context.Context, table string, entity []byte) error
	// QueryEntities returns every matching entity as raw JSON. An empty
	// filter lists the whole table.
	QueryEntities(ctx context.Context, table, filter string) ([][]byte, error)
	DeleteEntity(ctx context.Context, table, partitionKey, rowKey string) error
}

type azureStore struct {
	service *aztables.ServiceClient
}

// NewAzureStore authenticates with the account shared key. doer replaces
// the SDK transport so the process-wide TLS and timeout settings apply.
func NewAzureStore(profile config.AzureTableProfile, doer transport.HTTPDoer) (TableStore, error) {
	cred, err := aztables.NewSharedKeyCredential(profile.AccountName, profile.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure table credential: %w", err)
	}

	opts := &aztables.ClientOptions{}
	if doer != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: doer}
	}
	service, err := aztables.NewServiceClientWithSharedKey(profile.ServiceURL(), cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure table client: %w", err)
	}
	return &azureStore{service: service}, nil
}

func (s *azureStore) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	pager := s.service.NewListTablesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translate(err)
		}
		for _, t := range page.Tables {
			if t != nil && t.Name != nil {
				names = append(names, *t.Name)
			}
		}
	}
	return names, nil
}

func (s *azureStore) CreateTable(ctx context.Context, table string) error {
	_, err := s.service.CreateTable(ctx, table, nil)
	var se *StoreError
	if err = translate(err); errors.As(err, &se) && se.Code == codeTableExists {
		return nil
	}
	return err
}

func (s *azureStore) DeleteTable(ctx context.Context, table string) error {
	_, err := s.service.DeleteTable(ctx, table, nil)
	return translate(err)
}

func (s *azureStore) AddEntity(ctx context.Context, table string, entity []byte) error {
	_, err := s.service.NewClient(table).AddEntity(ctx, entity, nil)
	return translate(err)
}

func (s *azureStore) QueryEntities(ctx context.Context, table, filter string) ([][]byte, error) {
	var opts *aztables.ListEntitiesOptions
	if filter != "" {
		opts = &aztables.ListEntitiesOptions{Filter: &filter}
	}

	var entities [][]byte
	pager := s.service.NewClient(table).NewListEntitiesPager(opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translate(err)
		}
		entities = append(entities, page.Entities...)
	}
	return entities, nil
}

func (s *azureStore) DeleteEntity(ctx context.Context, table, partitionKey, rowKey string) error {
	_, err := s.service.NewClient(table).DeleteEntity(ctx, partitionKey, rowKey, nil)
	return translate(err)
}

// translate maps SDK response errors onto ErrEntityExists and StoreError.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var re *azcore.ResponseError
	if !errors.As(err, &re) {
		return err
	}
	if re.ErrorCode == codeEntityExists {
		return ErrEntityExists
	}
	return &StoreError{StatusCode: re.StatusCode, Code: re.ErrorCode, Message: re.Error()}
}
