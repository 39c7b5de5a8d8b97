package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyCheck(name string, critical bool) Check {
	return Check{Name: name, Critical: critical, Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
		return StatusHealthy, nil, nil
	}}
}

func unhealthyCheck(name string, critical bool) Check {
	return Check{Name: name, Critical: critical, Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
		return StatusUnhealthy, nil, errors.New("boom")
	}}
}

func degradedCheck(name string) Check {
	return Check{Name: name, Critical: false, Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
		return StatusDegraded, nil, nil
	}}
}

func TestCheckAll_AllHealthyIsOverallHealthy(t *testing.T) {
	c := NewChecker(healthyCheck("a", true), healthyCheck("b", false))
	report := c.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, report.OverallStatus)
	assert.Equal(t, 2, report.Summary.Healthy)
	assert.Equal(t, 0, report.Summary.CriticalFailures)
}

func TestCheckAll_CriticalFailureIsOverallUnhealthy(t *testing.T) {
	c := NewChecker(healthyCheck("a", false), unhealthyCheck("b", true))
	report := c.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, report.OverallStatus)
	assert.Equal(t, 1, report.Summary.CriticalFailures)
}

func TestCheckAll_NonCriticalFailureIsOverallDegraded(t *testing.T) {
	c := NewChecker(healthyCheck("a", true), unhealthyCheck("b", false))
	report := c.CheckAll(context.Background())
	assert.Equal(t, StatusDegraded, report.OverallStatus)
	assert.Equal(t, 0, report.Summary.CriticalFailures)
	assert.Equal(t, 1, report.Summary.Degraded)
}

func TestCheckAll_DegradedCheckDegradesOverall(t *testing.T) {
	c := NewChecker(healthyCheck("a", true), degradedCheck("b"))
	report := c.CheckAll(context.Background())
	assert.Equal(t, StatusDegraded, report.OverallStatus)
}

func TestCheckQuick_OnlyRunsCriticalChecks(t *testing.T) {
	ran := map[string]bool{}
	track := func(name string, critical bool) Check {
		return Check{Name: name, Critical: critical, Perform: func(ctx context.Context) (Status, map[string]interface{}, error) {
			ran[name] = true
			return StatusHealthy, nil, nil
		}}
	}
	c := NewChecker(track("critical", true), track("noncritical", false))

	report := c.CheckQuick(context.Background())
	require.Len(t, report.Checks, 1)
	assert.True(t, ran["critical"])
	assert.False(t, ran["noncritical"])
}

func TestCheckAll_ErrorPopulatesErrorField(t *testing.T) {
	c := NewChecker(unhealthyCheck("broken", true))
	report := c.CheckAll(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "boom", report.Checks[0].Error)
}
