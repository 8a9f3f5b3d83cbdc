// Package providerstest provides a programmable RemoteClient for tests.
package providerstest

import (
	"context"
	"sync"

	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/providers"
)

// StubClient implements providers.RemoteClient with overridable funcs. Unset
// funcs return zero values. Calls are counted per method name.
type StubClient struct {
	SearchRecordsFn       func(ctx context.Context, pipelineID string, cursor *providers.Cursor, pageSize int) (*providers.RecordPage, error)
	LookupRecordsFn       func(ctx context.Context, pipelineID, query string) ([]providers.RemoteRecord, error)
	GetRecordFn           func(ctx context.Context, remoteID string) (*providers.RemoteRecord, error)
	CreateRecordFn        func(ctx context.Context, kind constants.ResourceKind, payload *providers.RecordPayload) (string, error)
	UpdateRecordFn        func(ctx context.Context, remoteID string, payload *providers.RecordPayload) error
	DeleteRecordFn        func(ctx context.Context, remoteID string) error
	SearchProfilesFn      func(ctx context.Context, query string, cursor *providers.Cursor, pageSize int) (*providers.ProfilePage, error)
	CreateProfileFn       func(ctx context.Context, profile *providers.RemoteProfile) (string, error)
	GetPipelinesFn        func(ctx context.Context) ([]providers.RemotePipeline, error)
	GetFieldDefinitionsFn func(ctx context.Context, model string) ([]providers.FieldDefinition, error)
	UpdateFieldOptionsFn  func(ctx context.Context, fieldID string, options []string) error

	mu    sync.Mutex
	calls map[string]int
}

var _ providers.RemoteClient = (*StubClient)(nil)

func (s *StubClient) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

// Calls returns how many times a method was called.
func (s *StubClient) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *StubClient) SearchRecords(ctx context.Context, pipelineID string, cursor *providers.Cursor, pageSize int) (*providers.RecordPage, error) {
	s.record("SearchRecords")
	if s.SearchRecordsFn == nil {
		return &providers.RecordPage{}, nil
	}
	return s.SearchRecordsFn(ctx, pipelineID, cursor, pageSize)
}

func (s *StubClient) LookupRecords(ctx context.Context, pipelineID, query string) ([]providers.RemoteRecord, error) {
	s.record("LookupRecords")
	if s.LookupRecordsFn == nil {
		return nil, nil
	}
	return s.LookupRecordsFn(ctx, pipelineID, query)
}

func (s *StubClient) GetRecord(ctx context.Context, remoteID string) (*providers.RemoteRecord, error) {
	s.record("GetRecord")
	if s.GetRecordFn == nil {
		return nil, nil
	}
	return s.GetRecordFn(ctx, remoteID)
}

func (s *StubClient) CreateRecord(ctx context.Context, kind constants.ResourceKind, payload *providers.RecordPayload) (string, error) {
	s.record("CreateRecord")
	if s.CreateRecordFn == nil {
		return "", nil
	}
	return s.CreateRecordFn(ctx, kind, payload)
}

func (s *StubClient) UpdateRecord(ctx context.Context, remoteID string, payload *providers.RecordPayload) error {
	s.record("UpdateRecord")
	if s.UpdateRecordFn == nil {
		return nil
	}
	return s.UpdateRecordFn(ctx, remoteID, payload)
}

func (s *StubClient) DeleteRecord(ctx context.Context, remoteID string) error {
	s.record("DeleteRecord")
	if s.DeleteRecordFn == nil {
		return nil
	}
	return s.DeleteRecordFn(ctx, remoteID)
}

func (s *StubClient) SearchProfiles(ctx context.Context, query string, cursor *providers.Cursor, pageSize int) (*providers.ProfilePage, error) {
	s.record("SearchProfiles")
	if s.SearchProfilesFn == nil {
		return &providers.ProfilePage{}, nil
	}
	return s.SearchProfilesFn(ctx, query, cursor, pageSize)
}

func (s *StubClient) CreateProfile(ctx context.Context, profile *providers.RemoteProfile) (string, error) {
	s.record("CreateProfile")
	if s.CreateProfileFn == nil {
		return "", nil
	}
	return s.CreateProfileFn(ctx, profile)
}

func (s *StubClient) GetPipelines(ctx context.Context) ([]providers.RemotePipeline, error) {
	s.record("GetPipelines")
	if s.GetPipelinesFn == nil {
		return nil, nil
	}
	return s.GetPipelinesFn(ctx)
}

func (s *StubClient) GetFieldDefinitions(ctx context.Context, model string) ([]providers.FieldDefinition, error) {
	s.record("GetFieldDefinitions")
	if s.GetFieldDefinitionsFn == nil {
		return nil, nil
	}
	return s.GetFieldDefinitionsFn(ctx, model)
}

func (s *StubClient) UpdateFieldOptions(ctx context.Context, fieldID string, options []string) error {
	s.record("UpdateFieldOptions")
	if s.UpdateFieldOptionsFn == nil {
		return nil
	}
	return s.UpdateFieldOptionsFn(ctx, fieldID, options)
}
