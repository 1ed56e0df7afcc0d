package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrder(t *testing.T) {
	invoices := &stubJob{name: "payout-invoices"}
	retention := &stubJob{name: "retention"}
	registry, err := NewRegistry(invoices, retention)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Equal(t, []Job{invoices, retention}, jobs)

	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicatesAndBlanks(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "retention"}, &stubJob{name: "retention"})
	require.ErrorContains(t, err, `"retention" already registered`)

	_, err = NewRegistry(&stubJob{})
	require.ErrorContains(t, err, "name required")

	var registry Registry
	require.Error(t, registry.Register(nil))
	require.NoError(t, registry.Register(&stubJob{name: "payout-invoices"}))
	require.Len(t, registry.Jobs(), 1)
}
