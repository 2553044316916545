// Package mocks provides test doubles for the tanda client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	tanda "github.com/conductores/onboarding-engine/pkg/tanda"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Validate provides a mock function with given fields: ctx, req
func (_m *MockClient) Validate(ctx context.Context, req tanda.ValidateRequest) (*tanda.ValidateResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Validate")
	}

	var r0 *tanda.ValidateResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, tanda.ValidateRequest) (*tanda.ValidateResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, tanda.ValidateRequest) *tanda.ValidateResponse); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*tanda.ValidateResponse)
	}

	if rf, ok := ret.Get(1).(func(context.Context, tanda.ValidateRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Schedule provides a mock function with given fields: ctx, req
func (_m *MockClient) Schedule(ctx context.Context, req tanda.ScheduleRequest) (*tanda.ScheduleResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Schedule")
	}

	var r0 *tanda.ScheduleResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, tanda.ScheduleRequest) (*tanda.ScheduleResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, tanda.ScheduleRequest) *tanda.ScheduleResponse); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*tanda.ScheduleResponse)
	}

	if rf, ok := ret.Get(1).(func(context.Context, tanda.ScheduleRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// UploadRoster provides a mock function with given fields: ctx, req
func (_m *MockClient) UploadRoster(ctx context.Context, req tanda.RosterUploadRequest) (*tanda.RosterUploadResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for UploadRoster")
	}

	var r0 *tanda.RosterUploadResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, tanda.RosterUploadRequest) (*tanda.RosterUploadResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, tanda.RosterUploadRequest) *tanda.RosterUploadResponse); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*tanda.RosterUploadResponse)
	}

	if rf, ok := ret.Get(1).(func(context.Context, tanda.RosterUploadRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
