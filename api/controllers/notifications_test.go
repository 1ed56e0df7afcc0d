package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payouts-backend/api/middleware"
	"github.com/angelmondragon/payouts-backend/internal/notifications"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

type inboxStub struct {
	listed    []notifications.ListParams
	marked    []notifications.Recipient
	markedIDs []uuid.UUID
	cleared   []notifications.Recipient
	updated   int64
}

func (s *inboxStub) List(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	s.listed = append(s.listed, params)
	return &notifications.ListResult{UnreadCount: 3}, nil
}

func (s *inboxStub) MarkRead(_ context.Context, recipient notifications.Recipient, id uuid.UUID) error {
	s.marked = append(s.marked, recipient)
	s.markedIDs = append(s.markedIDs, id)
	return nil
}

func (s *inboxStub) MarkAllRead(_ context.Context, recipient notifications.Recipient) (int64, error) {
	s.cleared = append(s.cleared, recipient)
	return s.updated, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type caller struct {
	role  enums.ActorRole
	user  uuid.UUID
	org   uuid.UUID
	noOrg bool
}

func (c caller) request(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := req.Context()
	if c.user != uuid.Nil {
		ctx = middleware.WithUserID(ctx, c.user.String())
	}
	if c.role != "" {
		ctx = middleware.WithRole(ctx, string(c.role))
	}
	if c.org != uuid.Nil && !c.noOrg {
		ctx = middleware.WithOrganizationID(ctx, c.org.String())
	}
	return req.WithContext(ctx)
}

func decodeData[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestMarkNotificationReadResolvesInbox(t *testing.T) {
	userID, orgID := uuid.New(), uuid.New()

	cases := []struct {
		name   string
		caller caller
		want   notifications.Recipient
	}{
		{
			name:   "seller reads the organization inbox",
			caller: caller{role: enums.ActorRoleSeller, user: userID, org: orgID},
			want:   notifications.OrganizationRecipient(orgID),
		},
		{
			name:   "customer reads the personal inbox",
			caller: caller{role: enums.ActorRoleCustomer, user: userID},
			want:   notifications.UserRecipient(userID),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &inboxStub{}
			notificationID := uuid.New()
			req := addRouteParam(tc.caller.request(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read"), "notificationId", notificationID.String())

			resp := httptest.NewRecorder()
			MarkNotificationRead(svc, testLogger())(resp, req)

			require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
			require.Equal(t, []notifications.Recipient{tc.want}, svc.marked)
			require.Equal(t, []uuid.UUID{notificationID}, svc.markedIDs)
			require.True(t, decodeData[map[string]bool](t, resp)["read"])
		})
	}
}

func TestMarkNotificationReadRejects(t *testing.T) {
	cases := []struct {
		name   string
		caller caller
		param  string
		want   int
	}{
		{name: "seller without organization", caller: caller{role: enums.ActorRoleSeller, user: uuid.New(), org: uuid.New(), noOrg: true}, param: uuid.NewString(), want: http.StatusForbidden},
		{name: "anonymous", param: uuid.NewString(), want: http.StatusUnauthorized},
		{name: "malformed id", caller: caller{role: enums.ActorRoleCustomer, user: uuid.New()}, param: "invalid", want: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &inboxStub{}
			req := addRouteParam(tc.caller.request(http.MethodPost, "/api/v1/notifications/"+tc.param+"/read"), "notificationId", tc.param)

			resp := httptest.NewRecorder()
			MarkNotificationRead(svc, testLogger())(resp, req)

			require.Equal(t, tc.want, resp.Code, resp.Body.String())
			require.Empty(t, svc.marked)
		})
	}
}

func TestMarkAllNotificationsReadReportsUpdated(t *testing.T) {
	userID := uuid.New()
	svc := &inboxStub{updated: 5}

	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger())(resp, caller{role: enums.ActorRoleCustomer, user: userID}.request(http.MethodPost, "/api/v1/notifications/read-all"))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, []notifications.Recipient{notifications.UserRecipient(userID)}, svc.cleared)
	require.EqualValues(t, 5, decodeData[map[string]int64](t, resp)["updated"])
}

func TestListNotificationsQuery(t *testing.T) {
	customer := caller{role: enums.ActorRoleCustomer, user: uuid.New()}

	t.Run("passes filters through", func(t *testing.T) {
		svc := &inboxStub{}
		resp := httptest.NewRecorder()
		ListNotifications(svc, testLogger())(resp, customer.request(http.MethodGet, "/api/v1/notifications?limit=10&unreadOnly=true&cursor=abc"))

		require.Equal(t, http.StatusOK, resp.Code)
		require.Len(t, svc.listed, 1)
		got := svc.listed[0]
		require.Equal(t, 10, got.Limit)
		require.True(t, got.UnreadOnly)
		require.Equal(t, "abc", got.Cursor)
		require.Equal(t, notifications.UserRecipient(customer.user), got.Recipient)
	})

	for _, raw := range []string{"unreadOnly=maybe", "limit=0", "limit=101"} {
		t.Run(raw, func(t *testing.T) {
			svc := &inboxStub{}
			resp := httptest.NewRecorder()
			ListNotifications(svc, testLogger())(resp, customer.request(http.MethodGet, "/api/v1/notifications?"+raw))

			require.Equal(t, http.StatusBadRequest, resp.Code)
			require.Empty(t, svc.listed)
		})
	}
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}
